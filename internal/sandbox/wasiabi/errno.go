// Package wasiabi defines the guest-visible wire layouts and the WASI
// errno taxonomy shared by every syscall shim and the hostcall facade.
package wasiabi

import "golang.org/x/sys/unix"

// Errno is the runtime's error taxonomy, serialized to the guest as the
// WASI numeric errno set (snapshot-preview1, __wasi_errno_t). The numeric
// values below are the wire values, not an implementation detail — a
// hostcall dispatcher writes Errno(err) directly into the guest's errno
// return slot.
type Errno uint16

const (
	Success Errno = iota
	Etoobig
	Eacces
	Eaddrinuse
	Eaddrnotavail
	Eafnosupport
	Eagain
	Ealready
	Ebadf
	Ebadmsg
	Ebusy
	Ecanceled
	Echild
	Econnaborted
	Econnrefused
	Econnreset
	Edeadlk
	Edestaddrreq
	Edom
	Edquot
	Eexist
	Efault
	Efbig
	Ehostunreach
	Eidrm
	Eilseq
	Einprogress
	Eintr
	Einval
	Eio
	Eisconn
	Eisdir
	Eloop
	Emfile
	Emlink
	Emsgsize
	Emultihop
	Enametoolong
	Enetdown
	Enetreset
	Enetunreach
	Enfile
	Enobufs
	Enodev
	Enoent
	Enoexec
	Enolck
	Enolink
	Enomem
	Enomsg
	Enoprotoopt
	Enospc
	Enosys
	Enotconn
	Enotdir
	Enotempty
	Enotrecoverable
	Enotsock
	Enotsup
	Enotty
	Enxio
	Eoverflow
	Eownerdead
	Eperm
	Epipe
	Eproto
	Eprotonosupport
	Eprototype
	Erange
	Erofs
	Espipe
	Esrch
	Estale
	Etimedout
	Etxtbsy
	Exdev
	Enotcapable
)

var names = map[Errno]string{
	Success: "ESUCCESS", Etoobig: "E2BIG", Eacces: "EACCES",
	Eaddrinuse: "EADDRINUSE", Eaddrnotavail: "EADDRNOTAVAIL",
	Eafnosupport: "EAFNOSUPPORT", Eagain: "EAGAIN", Ealready: "EALREADY",
	Ebadf: "EBADF", Ebadmsg: "EBADMSG", Ebusy: "EBUSY", Ecanceled: "ECANCELED",
	Echild: "ECHILD", Econnaborted: "ECONNABORTED", Econnrefused: "ECONNREFUSED",
	Econnreset: "ECONNRESET", Edeadlk: "EDEADLK", Edestaddrreq: "EDESTADDRREQ",
	Edom: "EDOM", Edquot: "EDQUOT", Eexist: "EEXIST", Efault: "EFAULT",
	Efbig: "EFBIG", Ehostunreach: "EHOSTUNREACH", Eidrm: "EIDRM",
	Eilseq: "EILSEQ", Einprogress: "EINPROGRESS", Eintr: "EINTR",
	Einval: "EINVAL", Eio: "EIO", Eisconn: "EISCONN", Eisdir: "EISDIR",
	Eloop: "ELOOP", Emfile: "EMFILE", Emlink: "EMLINK", Emsgsize: "EMSGSIZE",
	Emultihop: "EMULTIHOP", Enametoolong: "ENAMETOOLONG", Enetdown: "ENETDOWN",
	Enetreset: "ENETRESET", Enetunreach: "ENETUNREACH", Enfile: "ENFILE",
	Enobufs: "ENOBUFS", Enodev: "ENODEV", Enoent: "ENOENT", Enoexec: "ENOEXEC",
	Enolck: "ENOLCK", Enolink: "ENOLINK", Enomem: "ENOMEM", Enomsg: "ENOMSG",
	Enoprotoopt: "ENOPROTOOPT", Enospc: "ENOSPC", Enosys: "ENOSYS",
	Enotconn: "ENOTCONN", Enotdir: "ENOTDIR", Enotempty: "ENOTEMPTY",
	Enotrecoverable: "ENOTRECOVERABLE", Enotsock: "ENOTSOCK", Enotsup: "ENOTSUP",
	Enotty: "ENOTTY", Enxio: "ENXIO", Eoverflow: "EOVERFLOW",
	Eownerdead: "EOWNERDEAD", Eperm: "EPERM", Epipe: "EPIPE", Eproto: "EPROTO",
	Eprotonosupport: "EPROTONOSUPPORT", Eprototype: "EPROTOTYPE",
	Erange: "ERANGE", Erofs: "EROFS", Espipe: "ESPIPE", Esrch: "ESRCH",
	Estale: "ESTALE", Etimedout: "ETIMEDOUT", Etxtbsy: "ETXTBSY",
	Exdev: "EXDEV", Enotcapable: "ENOTCAPABLE",
}

func (e Errno) String() string {
	if n, ok := names[e]; ok {
		return n
	}
	return "EUNKNOWN"
}

// Error satisfies the error interface so Errno can be returned directly
// from shim and facade functions.
func (e Errno) Error() string { return e.String() }

// Ok reports whether e is the zero/success value.
func (e Errno) Ok() bool { return e == Success }

// unixErrnoTable maps golang.org/x/sys/unix numeric errno constants to the
// runtime taxonomy. golang.org/x/sys/unix defines these per-GOOS with the
// platform-correct numeric value, so one switch covers every platform the
// shim layer builds for.
var unixErrnoTable = map[unix.Errno]Errno{
	unix.E2BIG: Etoobig, unix.EACCES: Eacces, unix.EADDRINUSE: Eaddrinuse,
	unix.EADDRNOTAVAIL: Eaddrnotavail, unix.EAFNOSUPPORT: Eafnosupport,
	unix.EAGAIN: Eagain, unix.EALREADY: Ealready, unix.EBADF: Ebadf,
	unix.EBADMSG: Ebadmsg, unix.EBUSY: Ebusy, unix.ECANCELED: Ecanceled,
	unix.ECHILD: Echild, unix.ECONNABORTED: Econnaborted,
	unix.ECONNREFUSED: Econnrefused, unix.ECONNRESET: Econnreset,
	unix.EDEADLK: Edeadlk, unix.EDESTADDRREQ: Edestaddrreq, unix.EDOM: Edom,
	unix.EDQUOT: Edquot, unix.EEXIST: Eexist, unix.EFAULT: Efault,
	unix.EFBIG: Efbig, unix.EHOSTUNREACH: Ehostunreach, unix.EIDRM: Eidrm,
	unix.EILSEQ: Eilseq, unix.EINPROGRESS: Einprogress, unix.EINTR: Eintr,
	unix.EINVAL: Einval, unix.EIO: Eio, unix.EISCONN: Eisconn,
	unix.EISDIR: Eisdir, unix.ELOOP: Eloop, unix.EMFILE: Emfile,
	unix.EMLINK: Emlink, unix.EMSGSIZE: Emsgsize, unix.EMULTIHOP: Emultihop,
	unix.ENAMETOOLONG: Enametoolong, unix.ENETDOWN: Enetdown,
	unix.ENETRESET: Enetreset, unix.ENETUNREACH: Enetunreach,
	unix.ENFILE: Enfile, unix.ENOBUFS: Enobufs, unix.ENODEV: Enodev,
	unix.ENOENT: Enoent, unix.ENOEXEC: Enoexec, unix.ENOLCK: Enolck,
	unix.ENOLINK: Enolink, unix.ENOMEM: Enomem, unix.ENOMSG: Enomsg,
	unix.ENOPROTOOPT: Enoprotoopt, unix.ENOSPC: Enospc, unix.ENOSYS: Enosys,
	unix.ENOTCONN: Enotconn, unix.ENOTDIR: Enotdir, unix.ENOTEMPTY: Enotempty,
	unix.ENOTRECOVERABLE: Enotrecoverable, unix.ENOTSOCK: Enotsock,
	unix.ENOTSUP: Enotsup, unix.ENOTTY: Enotty, unix.ENXIO: Enxio,
	unix.EOVERFLOW: Eoverflow, unix.EOWNERDEAD: Eownerdead, unix.EPERM: Eperm,
	unix.EPIPE: Epipe, unix.EPROTO: Eproto,
	unix.EPROTONOSUPPORT: Eprotonosupport, unix.EPROTOTYPE: Eprototype,
	unix.ERANGE: Erange, unix.EROFS: Erofs, unix.ESPIPE: Espipe,
	unix.ESRCH: Esrch, unix.ESTALE: Estale, unix.ETIMEDOUT: Etimedout,
	unix.ETXTBSY: Etxtbsy, unix.EXDEV: Exdev,
}

// FromUnixErr classifies an error returned by a golang.org/x/sys/unix call.
// A nil err maps to Success; any error that isn't a recognized unix.Errno
// (should not happen for calls this package makes) defensively maps to
// Einval, matching the raw-syscall fallback in FromRawReturn.
func FromUnixErr(err error) Errno {
	if err == nil {
		return Success
	}
	if errno, ok := err.(unix.Errno); ok {
		if e, ok := unixErrnoTable[errno]; ok {
			return e
		}
	}
	return Einval
}

// FromRawReturn classifies the signed return value of a raw syscall
// (e.g. one issued via unix.Syscall directly).
// Values in [-4095, -1] are POSIX errnos; values >= 0 are successful
// results; values <= -4096 are defensively mapped to Einval since no shim
// in this runtime is expected to produce them.
func FromRawReturn(ret int64) (uintptr, Errno) {
	if ret >= 0 {
		return uintptr(ret), Success
	}
	if ret <= -4096 {
		return 0, Einval
	}
	return 0, FromUnixErr(unix.Errno(-ret))
}
