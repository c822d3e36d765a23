package cmd

import (
	"fmt"

	"github.com/PLSysSec/wave-sub000/internal/config"
	"github.com/PLSysSec/wave-sub000/internal/output"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/ctx"
	"github.com/PLSysSec/wave-sub000/internal/sandbox/netlist"
	"github.com/spf13/cobra"
)

var sandboxProfileFlag string

func addSandboxCommand(parent *cobra.Command) {
	sandboxCmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Inspect and exercise sandbox profiles",
	}

	runCmd := &cobra.Command{
		Use:   "run [args...]",
		Short: "Build a sandbox context from a profile and print its initial state",
		Long: `Build a Ctx from the configured home directory and netlist, the
same construction a guest's host process performs before the hostcall
dispatch loop takes over. This command stops after printing the home
directory, argument and environment sizes, and netlist — it does not load
or execute a guest module. The --profile value is echoed in the output;
it does not select a different configuration.`,
		RunE: runSandboxRun,
	}
	runCmd.Flags().StringVar(&sandboxProfileFlag, "profile", "default", "Sandbox profile name")

	sandboxCmd.AddCommand(runCmd)
	parent.AddCommand(sandboxCmd)
}

func runSandboxRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	home := config.WavehostHome()
	if cfg.DefaultHome != "" {
		home = cfg.DefaultHome
	}
	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("ensuring home dir: %w", err)
	}

	var list netlist.List
	for i, ep := range cfg.Netlist {
		if i >= netlist.Size {
			break
		}
		list[i] = endpointToNetlist(ep)
	}

	sbCtx, err := ctx.New(ctx.Config{
		HomeDir: home,
		Args:    append([]string{"wavehost-guest"}, args...),
		Env:     []string{},
		Netlist: list,
	})
	if err != nil {
		return fmt.Errorf("building sandbox context: %w", err)
	}
	defer sbCtx.Close()

	argc, argBytes := sbCtx.ArgSizesGet()
	envc, envBytes := sbCtx.EnvironSizesGet()

	entries := make([]map[string]any, 0, netlist.Size)
	for _, ep := range cfg.Netlist {
		entries = append(entries, map[string]any{
			"protocol": ep.Protocol,
			"addr":     ep.Addr,
			"port":     ep.Port,
		})
	}

	if output.IsJSON() {
		return output.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"profile":  sandboxProfileFlag,
			"home":     home,
			"argc":     argc,
			"arg_bytes": argBytes,
			"envc":     envc,
			"env_bytes": envBytes,
			"netlist":  entries,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "profile:  %s\n", sandboxProfileFlag)
	fmt.Fprintf(cmd.OutOrStdout(), "home:     %s\n", home)
	fmt.Fprintf(cmd.OutOrStdout(), "argc:     %d (%d bytes)\n", argc, argBytes)
	fmt.Fprintf(cmd.OutOrStdout(), "envc:     %d (%d bytes)\n", envc, envBytes)
	fmt.Fprintln(cmd.OutOrStdout(), "netlist:")
	for _, ep := range cfg.Netlist {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s:%d\n", ep.Protocol, ep.Addr, ep.Port)
	}

	return nil
}

func endpointToNetlist(ep config.NetEndpoint) netlist.Endpoint {
	proto := netlist.ProtoUnknown
	switch ep.Protocol {
	case "tcp":
		proto = netlist.ProtoTcp
	case "udp":
		proto = netlist.ProtoUdp
	}
	return netlist.Endpoint{
		Protocol: proto,
		Addr:     ipv4ToUint32(ep.Addr),
		Port:     uint32(ep.Port),
	}
}

// ipv4ToUint32 parses a dotted-quad IPv4 address into network-byte-order
// uint32 form, the same representation netlist.Endpoint.Addr carries.
func ipv4ToUint32(addr string) uint32 {
	var a, b, c, d uint32
	fmt.Sscanf(addr, "%d.%d.%d.%d", &a, &b, &c, &d)
	return a<<24 | b<<16 | c<<8 | d
}
