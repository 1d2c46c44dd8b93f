package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fsgate/internal/delivery/server/bootstrap"
	"fsgate/internal/shared/config"
	"fsgate/internal/shared/logging"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(viper.New())
}

func buildRootCommand(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("FSGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "fsgate-server",
		Short:         "Approval-gated file operations for coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meta, err := loadConfig(v)
			if err != nil {
				return fmt.Errorf("configuration: %w", err)
			}
			closeLog, err := logging.Configure(logging.Options{
				Level:  logging.ParseLevel(cfg.Logging.Level),
				Dir:    cfg.Logging.Dir,
				Stderr: cfg.Logging.Stderr,
			})
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			logger := logging.NewComponentLogger("Main")
			if meta.FileLoaded {
				logger.Info("configuration loaded from %s", meta.Path)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.RunServer(ctx, cfg, logger)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to config.yaml (env FSGATE_CONFIG_PATH)")
	flags.String("host", "", "Listen host")
	flags.Int("port", 0, "Listen port")
	flags.StringSlice("workspace", nil, "Workspace root directory (repeatable)")
	flags.String("remote-url", "", "Remote approval service websocket URL")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Duration("pending-ttl", 0, "Expire undecided approvals after this long (0 keeps them)")
	flags.Bool("debug", false, "Debug mode")
	for _, name := range []string{"config", "host", "port", "workspace", "remote-url", "log-level", "pending-ttl", "debug"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(newConfigCommand(v))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newConfigCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, meta, err := loadConfig(v)
			printCheck(cmd.OutOrStdout(), cfg, meta, err)
			return err
		},
	})
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fsgate-server %s\n", bootstrap.Version)
		},
	}
}

func loadConfig(v *viper.Viper) (config.Config, config.Metadata, error) {
	opts := []config.Option{config.WithOverrides(overridesFrom(v))}
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	return config.Load(opts...)
}

// overridesFrom collects only the values set by a flag or FSGATE_* variable.
func overridesFrom(v *viper.Viper) config.Overrides {
	var o config.Overrides
	if v.IsSet("host") {
		host := v.GetString("host")
		o.Host = &host
	}
	if v.IsSet("port") {
		port := v.GetInt("port")
		o.Port = &port
	}
	if v.IsSet("workspace") {
		o.Workspace = v.GetStringSlice("workspace")
	}
	if v.IsSet("remote-url") {
		url := v.GetString("remote-url")
		o.RemoteURL = &url
	}
	if v.IsSet("log-level") {
		level := v.GetString("log-level")
		o.LogLevel = &level
	}
	if v.IsSet("pending-ttl") {
		ttl := v.GetDuration("pending-ttl")
		o.PendingTTL = &ttl
	}
	if v.IsSet("debug") {
		debug := v.GetBool("debug")
		o.Debug = &debug
	}
	return o
}

func printCheck(w io.Writer, cfg config.Config, meta config.Metadata, err error) {
	source := "defaults"
	if meta.FileLoaded {
		source = meta.Path
	}
	fmt.Fprintf(w, "%s %s\n", gray("source:"), source)
	if err != nil {
		var issue config.ValidationIssue
		if errors.As(err, &issue) {
			for _, line := range strings.Split(err.Error(), "\n") {
				fmt.Fprintf(w, "  %s %s\n", red("✗"), line)
			}
		} else {
			fmt.Fprintf(w, "  %s %v\n", red("✗"), err)
		}
		return
	}
	fmt.Fprintf(w, "  %s listen %s:%d\n", green("✓"), cfg.Server.Host, cfg.Server.Port)
	for _, dir := range cfg.Workspace.Directories {
		fmt.Fprintf(w, "  %s workspace %s\n", green("✓"), dir)
	}
	if cfg.Remote.Enabled() {
		fmt.Fprintf(w, "  %s remote %s\n", green("✓"), cfg.Remote.URL)
	} else {
		fmt.Fprintf(w, "  %s remote approvals disabled\n", yellow("-"))
	}
	if cfg.Approval.PendingTTL > 0 {
		fmt.Fprintf(w, "  %s pending approvals expire after %s\n", green("✓"), cfg.Approval.PendingTTL)
	}
}
