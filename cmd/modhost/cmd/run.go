package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modhost"
	"github.com/GoCodeAlone/modhost/admin"
	"github.com/GoCodeAlone/modhost/config"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

type runOptions struct {
	configFile string
	plugins    string
	dataDir    string
	insecure   bool
	adminAddr  string
	watch      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the plugin host until interrupted",
		Long: `Run registers every plugin of the plugin list, initializes and starts them
together with the bound services, and shuts everything down on SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.hostConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "host configuration file (yaml, toml, json or hcl)")
	flags.StringVarP(&opts.plugins, "plugins", "p", "", "plugin list file")
	flags.StringVar(&opts.dataDir, "data-dir", "", "root of the per-plugin data directories")
	flags.BoolVar(&opts.insecure, "insecure", false, "do not enforce capabilities")
	flags.StringVar(&opts.adminAddr, "admin-addr", "", "listen address of the admin endpoint")
	flags.BoolVar(&opts.watch, "watch", false, "register plugins added to the plugin list while running")
	return cmd
}

// hostConfig loads the host settings; flags that were set win over file and
// environment.
func (o *runOptions) hostConfig(cmd *cobra.Command) (*config.HostConfig, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("plugins") {
		cfg.PluginsFile = o.plugins
	}
	if flags.Changed("data-dir") {
		cfg.DataDirectory = o.dataDir
	}
	if flags.Changed("insecure") {
		cfg.Insecure = o.insecure
	}
	if flags.Changed("admin-addr") {
		cfg.AdminAddr = o.adminAddr
	}
	if flags.Changed("watch") {
		cfg.WatchPlugins = o.watch
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.HostConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := modhost.NewPlatform(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.AdminAddr != "" {
		srv := admin.NewServer(cfg.AdminAddr, admin.NewHandler(p.Manager(), p.Services(), p.Logger()), p.Logger())
		if err := service.Bind[*admin.Server](policy.HostContext(ctx), p.Services(), srv); err != nil {
			return err
		}
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		p.Logger().Info("Shutdown requested")
	case <-waitDone(p):
	}
	return p.SafeStop(context.WithoutCancel(ctx))
}

func waitDone(p *modhost.Platform) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = p.Wait(context.Background())
		close(done)
	}()
	return done
}
