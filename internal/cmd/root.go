package cmd

import (
	"fmt"
	"os"

	"github.com/PLSysSec/wave-sub000/internal/config"
	"github.com/PLSysSec/wave-sub000/internal/output"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	jsonFlag    bool
	verboseFlag bool
	quietFlag   bool
	noColorFlag bool
	ConfigDir   string
)

func NewRootCmd() *cobra.Command {
	cmd := newRootCmd()
	addDoctorCommand(cmd)
	addVMCommands(cmd)
	addSandboxCommand(cmd)
	return cmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wavehost",
		Short:         "WASI sandbox host runtime",
		Long:          "wavehost — CLI for managing sandbox profiles and running WASI guests inside a host-enforced safety kernel.",
		Version:       fmt.Sprintf("wavehost v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag && quietFlag {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			if jsonFlag {
				quietFlag = true
			}
			output.SetFlags(jsonFlag, quietFlag, verboseFlag)
			config.SetConfigDir(ConfigDir)
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pflags := rootCmd.PersistentFlags()
	pflags.BoolVarP(&jsonFlag, "json", "j", false, "Output as JSON")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Extra detail to stderr")
	pflags.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	pflags.BoolVar(&noColorFlag, "no-color", false, "Disable ANSI colors")
	pflags.StringVar(&ConfigDir, "config-dir", "", "Override config directory (default: ~/.wavehost)")

	// Environment variable bindings
	if v := os.Getenv("WAVEHOST_HOME"); v != "" && ConfigDir == "" {
		ConfigDir = v
	}
	if os.Getenv("NO_COLOR") != "" {
		noColorFlag = true
	}
	if os.Getenv("WAVEHOST_JSON") == "1" {
		jsonFlag = true
	}

	return rootCmd
}

func Execute() error {
	cmd := NewRootCmd()
	return cmd.Execute()
}
