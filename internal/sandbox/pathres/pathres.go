// Package pathres implements sandboxed path resolution: a guest-supplied
// path is expanded component by component, following symlinks read
// relative to the sandbox home directory, and is rejected unless the
// fully expanded path stays inside the sandbox.
package pathres

import (
	"strings"

	"github.com/PLSysSec/wave-sub000/internal/sandbox/wasiabi"
	"golang.org/x/sys/unix"
)

// PathMax bounds the serialized length of a resolved host path.
const PathMax = 4096

// MaxSymlinks is the bound on symlink expansions per resolution; exceeding
// it yields Eloop, mirroring POSIX's own loop-detection bound.
const MaxSymlinks = 10

// ComponentKind tags one element of a parsed path.
type ComponentKind uint8

const (
	RootDir ComponentKind = iota
	CurDir
	ParentDir
	Normal
)

// Component is one slash-separated element of an unresolved or
// partially-resolved path.
type Component struct {
	Kind ComponentKind
	Name string // valid when Kind == Normal
}

// Sequence is an ordered list of path components, the working
// representation used while expanding symlinks.
type Sequence []Component

// getComponents splits a path the way POSIX path resolution walks it: a
// leading "/" becomes a single RootDir, "." becomes CurDir, ".." becomes
// ParentDir, everything else is Normal. Empty segments (from "//" or a
// trailing "/") are dropped, matching Unix's own treatment of redundant
// separators.
func getComponents(p string) Sequence {
	var out Sequence
	if strings.HasPrefix(p, "/") {
		out = append(out, Component{Kind: RootDir})
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			continue
		case ".":
			out = append(out, Component{Kind: CurDir})
		case "..":
			out = append(out, Component{Kind: ParentDir})
		default:
			out = append(out, Component{Kind: Normal, Name: seg})
		}
	}
	return out
}

// IsRelative reports whether c's first component is anything other than
// RootDir (an absolute Windows-style prefix never arises on this
// platform, so RootDir is the only disqualifying leading component).
// Requires len(c) > 0.
func IsRelative(c Sequence) bool {
	return c[0].Kind != RootDir
}

// depthErr is returned by MinDepth for a path that ever addresses the
// sandbox root via a leading RootDir component.
const depthErr = -1 << 30

// MinDepth walks c and returns the minimum directory depth reached below
// the sandbox home, where CurDir is a no-op, ParentDir decrements, and
// Normal increments. A RootDir component anywhere is an immediate error
// (depthErr), and depth dipping below zero at any prefix is also an
// error (the literal returned negative depth) -- both block paths like
// "../escape" from reaching outside the sandbox.
func MinDepth(c Sequence) int {
	depth := 0
	minDepth := 0
	for _, comp := range c {
		switch comp.Kind {
		case RootDir:
			return depthErr
		case CurDir:
		case ParentDir:
			depth--
		case Normal:
			depth++
		}
		if depth < 0 {
			return depth
		}
		if depth < minDepth {
			minDepth = depth
		}
	}
	return minDepth
}

// unparse serializes c back into a "/"-joined path string, bounded by
// PathMax. Returns false if the result would not fit.
func unparse(c Sequence) (string, bool) {
	parts := make([]string, 0, len(c))
	leadingSlash := false
	for _, comp := range c {
		switch comp.Kind {
		case RootDir:
			leadingSlash = true
		case CurDir:
			parts = append(parts, ".")
		case ParentDir:
			parts = append(parts, "..")
		case Normal:
			parts = append(parts, comp.Name)
		}
	}
	out := strings.Join(parts, "/")
	if leadingSlash {
		out = "/" + out
	}
	if len(out) >= PathMax {
		return "", false
	}
	return out, true
}

// Resolver resolves guest paths against a fixed directory FD, the way
// every *at syscall in the shim layer is required to: relative to the
// sandbox home, never following a symlink out of it.
type Resolver struct {
	// DirFd is the host FD of the sandbox home directory that every
	// symlink read and component lookup is anchored to.
	DirFd int
}

// NewResolver builds a Resolver anchored at dirFd.
func NewResolver(dirFd int) *Resolver {
	return &Resolver{DirFd: dirFd}
}

// readLinkat reads the symlink target at the path so far, relative to
// r.DirFd. Returns ok=false if the path isn't a symlink (or any other
// readlinkat error occurs -- not being a symlink and a real I/O error
// are both "don't expand" from the caller's point of view, since a real
// error will resurface on the eventual open/stat of the resolved path).
func (r *Resolver) readLinkat(built Sequence) (Sequence, bool) {
	p, ok := unparse(built)
	if !ok {
		return nil, false
	}
	buf := make([]byte, PathMax)
	n, err := unix.Readlinkat(r.DirFd, p, buf)
	if err != nil || n <= 0 {
		return nil, false
	}
	return getComponents(string(buf[:n])), true
}

// maybeExpandComponent appends comp to out; if the resulting prefix is
// itself a symlink, the component is popped back off, numSymlinks is
// incremented, and the link target's components are returned for the
// caller to splice in instead.
func (r *Resolver) maybeExpandComponent(out *Sequence, comp Component, numSymlinks *int) (Sequence, bool) {
	*out = append(*out, comp)
	if link, ok := r.readLinkat(*out); ok {
		*out = (*out)[:len(*out)-1]
		*numSymlinks++
		return link, true
	}
	return nil, false
}

// expandSymlink splices a freshly-read symlink target into out,
// recursively following further symlinks as each of its components is
// appended, until numSymlinks exceeds MaxSymlinks.
func (r *Resolver) expandSymlink(out *Sequence, link Sequence, numSymlinks *int) {
	for _, comp := range link {
		if *numSymlinks > MaxSymlinks {
			return
		}
		if inner, ok := r.maybeExpandComponent(out, comp, numSymlinks); ok {
			r.expandSymlink(out, inner, numSymlinks)
		}
	}
}

// expandPath walks raw component by component, following symlinks as it
// goes (unless shouldFollow is false and the symlink is the path's final
// component, matching O_NOFOLLOW / *at(AT_SYMLINK_NOFOLLOW) semantics).
func (r *Resolver) expandPath(raw string, shouldFollow bool) (Sequence, wasiabi.Errno) {
	components := getComponents(raw)
	var out Sequence
	numSymlinks := 0

	for idx, comp := range components {
		if !shouldFollow && idx+1 == len(components) {
			out = append(out, comp)
			break
		}
		if link, ok := r.maybeExpandComponent(&out, comp, &numSymlinks); ok {
			r.expandSymlink(&out, link, &numSymlinks)
		}
		if numSymlinks > MaxSymlinks {
			return nil, wasiabi.Eloop
		}
	}
	return out, wasiabi.Success
}

// Resolve expands and validates a guest-supplied path, returning the
// sandbox-relative host path string to pass to the eventual *at
// syscall. Rejects empty results, absolute (RootDir-leading) paths, and
// any path whose minimum depth ever reaches outside the sandbox home
// (i.e. a ".." that would escape it), all surfaced as Enotcapable -- a
// capability violation, not a not-found.
func (r *Resolver) Resolve(raw string, shouldFollow bool) (string, wasiabi.Errno) {
	c, err := r.expandPath(raw, shouldFollow)
	if err != wasiabi.Success {
		return "", err
	}
	if len(c) == 0 || !IsRelative(c) || MinDepth(c) < 0 {
		return "", wasiabi.Enotcapable
	}
	out, ok := unparse(c)
	if !ok {
		return "", wasiabi.Enametoolong
	}
	return out, wasiabi.Success
}
