package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestVMSubcommandRegistered(t *testing.T) {
	root := NewRootCmd()

	// Find the "vm" subcommand
	var vmCmd *cobra.Command
	for _, c := range root.Commands() {
		if c.Use == "vm" {
			vmCmd = c
			break
		}
	}

	if vmCmd == nil {
		t.Fatal("'vm' subcommand not registered on root command")
	}

	// Check subcommands
	subNames := map[string]bool{}
	for _, c := range vmCmd.Commands() {
		subNames[c.Name()] = true
	}

	for _, name := range []string{"prepare", "status", "clean"} {
		if !subNames[name] {
			t.Errorf("'vm %s' subcommand not found", name)
		}
	}
}

func TestVMPrepareProfileFlagRegistered(t *testing.T) {
	root := NewRootCmd()

	var vmCmd *cobra.Command
	for _, c := range root.Commands() {
		if c.Use == "vm" {
			vmCmd = c
			break
		}
	}
	if vmCmd == nil {
		t.Fatal("'vm' subcommand not registered on root command")
	}

	var prepareCmd *cobra.Command
	for _, c := range vmCmd.Commands() {
		if c.Name() == "prepare" {
			prepareCmd = c
			break
		}
	}
	if prepareCmd == nil {
		t.Fatal("'vm prepare' subcommand not found")
	}

	profileFlag := prepareCmd.Flags().Lookup("profile")
	if profileFlag == nil {
		t.Fatal("--profile flag not registered on vm prepare command")
	}
	if profileFlag.DefValue != "default" {
		t.Errorf("--profile default = %q, want %q", profileFlag.DefValue, "default")
	}

	supervisorFlag := prepareCmd.Flags().Lookup("supervisor-bin")
	if supervisorFlag == nil {
		t.Fatal("--supervisor-bin flag not registered on vm prepare command")
	}
}

func TestVMStatusCommand(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"vm", "status"})

	err := root.Execute()
	if err != nil {
		t.Fatalf("vm status failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Prerequisites:") {
		t.Errorf("vm status output missing 'Prerequisites:', got:\n%s", output)
	}
	if !strings.Contains(output, "Snapshots:") {
		t.Errorf("vm status output missing 'Snapshots:', got:\n%s", output)
	}
}
