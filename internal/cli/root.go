package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"enginectl/internal/download"
	"enginectl/internal/supervisor"
	"enginectl/pkg/types"
)

// buildRootCmdWith constructs the command tree bound to cfg.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "enginectl",
		Short:         "Install, start and stop local inference engines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cfg.Out)
	root.SetErr(cfg.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Config file (.yaml, .json, .toml); defaults ENGINECTL_CONFIG")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error|off (defaults ENGINECTL_LOG_LEVEL or info)")
	pf.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Data folder for engines and models (defaults ENGINECTL_DATA_DIR or ~/enginectl)")
	pf.StringVar(&cfg.RecordPath, "record", cfg.RecordPath, "Shared record file (defaults ENGINECTL_RECORD or ~/.enginerc)")
	pf.StringVar(&cfg.ReleasesURL, "releases-url", cfg.ReleasesURL, "Release feed base URL (defaults ENGINECTL_RELEASES_URL)")

	root.AddCommand(enginesCmd(cfg))
	root.AddCommand(startCmd(cfg), stopCmd(cfg), statusCmd(cfg))
	root.AddCommand(downloadCmd(cfg))
	root.AddCommand(serveCmd(cfg))

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error {
		return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
	}})
	root.AddCommand(completionCmd)

	return root
}

func enginesCmd(cfg *Config) *cobra.Command {
	engines := &cobra.Command{Use: "engines", Short: "List, inspect and install engines", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("engines requires a subcommand: list|get|install")
	}}

	list := &cobra.Command{Use: "list", Short: "List known engines", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := cfg.newApp(nil)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-22s %-10s %-9s %s\n", "NAME", "VERSION", "INSTALLED", "PRODUCT")
		for _, e := range a.ListEngines() {
			version := e.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(w, "%-22s %-10s %-9t %s\n", e.Name, version, e.Installed, e.ProductName)
		}
		return nil
	}}

	get := &cobra.Command{Use: "get <name>", Short: "Show one engine as JSON", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := cfg.newApp(nil)
		if err != nil {
			return err
		}
		rec, err := a.GetEngine(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, rec)
	}}

	var (
		version string
		force   bool
		opts    types.InstallOptions
	)
	install := &cobra.Command{
		Use:     "install <name>",
		Short:   "Download and install an engine variant for this host",
		Example: "  enginectl engines install cortex.llamacpp\n  enginectl engines install llamacpp --run-mode GPU --cuda-version 12 --force",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := cfg.newApp(newProgressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			req := types.InstallEngineRequest{Version: version, Force: force}
			if anyChanged(cmd, "run-mode", "gpu-type", "cuda-version", "instructions", "vulkan") {
				o := opts
				req.Options = &o
			}
			if err := a.InstallEngine(cmd.Context(), args[0], req); err != nil {
				return err
			}
			rec, err := a.GetEngine(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s installed\n", rec.Name, rec.Version)
			return nil
		},
	}
	f := install.Flags()
	f.StringVar(&version, "version", "latest", "Release tag or latest")
	f.BoolVar(&force, "force", false, "Reinstall even if the engine directory exists")
	f.StringVar(&opts.RunMode, "run-mode", "", "CPU or GPU (detected when unset)")
	f.StringVar(&opts.GPUType, "gpu-type", "", "Accelerator vendor, e.g. Nvidia")
	f.StringVar(&opts.CUDAVersion, "cuda-version", "", "Major CUDA version: 11 or 12")
	f.StringVar(&opts.Instructions, "instructions", "", "CPU instruction tier: AVX, AVX2 or AVX512")
	f.BoolVar(&opts.Vulkan, "vulkan", false, "Install the Vulkan build")

	engines.AddCommand(list, get, install)
	return engines
}

func startCmd(cfg *Config) *cobra.Command {
	var attach bool
	cmd := &cobra.Command{Use: "start", Short: "Start the engine and wait until it is healthy", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := cfg.newApp(nil)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		res, err := a.Supervisor.Start(ctx, attach)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		if !attach {
			return nil
		}
		exited := make(chan struct{})
		go func() {
			a.Supervisor.Wait()
			close(exited)
		}()
		select {
		case <-exited:
		case <-ctx.Done():
			a.Supervisor.Stop(context.Background())
			<-exited
		}
		return nil
	}}
	cmd.Flags().BoolVar(&attach, "attach", envBool("ENGINECTL_ATTACH", false), "Keep the engine in the foreground sharing this terminal")
	return cmd
}

func stopCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{Use: "stop", Short: "Stop the engine", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := cfg.newApp(nil)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), a.StopEngine(cmd.Context()).Message)
		return nil
	}}
}

func statusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{Use: "status", Short: "Report whether the engine answers its health endpoint", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := cfg.newApp(nil)
		if err != nil {
			return err
		}
		st := a.ProcessStatus()
		// a fresh process tracks nothing; the endpoint is authoritative
		if a.Supervisor.Healthy(cmd.Context()) {
			st.State = string(supervisor.StateHealthy)
		}
		return printJSON(cmd, st)
	}}
}

func downloadCmd(cfg *Config) *cobra.Command {
	var (
		title    string
		kind     string
		parallel bool
	)
	cmd := &cobra.Command{
		Use:     "download <id> <url>=<destination>...",
		Short:   "Download files as one job with progress",
		Example: "  enginectl download models https://example.com/a.bin=/tmp/a.bin https://example.com/b.bin=/tmp/b.bin --parallel",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args[1:])
			if err != nil {
				return err
			}
			a, _, err := cfg.newApp(newProgressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if title == "" {
				title = args[0]
			}
			err = a.Downloads.Submit(cmd.Context(), download.Request{
				ID:       args[0],
				Title:    title,
				Type:     types.DownloadType(kind),
				Targets:  targets,
				Parallel: parallel,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s downloaded\n", args[0])
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "Job title (defaults to the id)")
	f.StringVar(&kind, "type", string(types.DownloadTypeModel), "Job type: engine|model|dependency")
	f.BoolVar(&parallel, "parallel", false, "Transfer every target concurrently")
	return cmd
}

// parseTargets splits url=destination pairs. The last '=' separates them so
// query strings survive.
func parseTargets(args []string) ([]types.DownloadTarget, error) {
	out := make([]types.DownloadTarget, 0, len(args))
	for _, a := range args {
		i := strings.LastIndex(a, "=")
		if i <= 0 || i == len(a)-1 {
			return nil, fmt.Errorf("invalid target %q, want <url>=<destination>", a)
		}
		out = append(out, types.DownloadTarget{URL: a[:i], Destination: os.ExpandEnv(a[i+1:])})
	}
	return out, nil
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
