package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/bru02/zhm/watcher/internal/config"
	"github.com/bru02/zhm/watcher/internal/shipper"
	"github.com/bru02/zhm/watcher/internal/viewer"
	"github.com/bru02/zhm/watcher/internal/watch"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// flagValues holds the raw command-line values. Only flags the user set
// override the config file and the environment.
type flagValues struct {
	configPath string
	host       string
	protocol   string
	party      string
	prefix     string
	room       string
	logLevel   string
	dir        string
	suffix     string
	prune      bool
}

func newRootCmd() *cobra.Command {
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:          "watcher",
		Short:        "Push changed SQL files to a relay room",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, fv)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[watcher] targeting room %s on %s\n", cfg.Room, cfg.BaseURL())
			if cfg.Prune {
				return runPrune(cmd.Context(), out, cfg)
			}
			return runWatch(cmd.Context(), out, cfg)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&fv.host, "host", "h", config.DefaultHost, "relay host[:port]")
	pf.StringVarP(&fv.protocol, "protocol", "p", "", "http or https (default: http for localhost, https otherwise)")
	pf.StringVar(&fv.party, "party", config.DefaultParty, "party name")
	pf.StringVar(&fv.prefix, "prefix", config.DefaultPrefix, "URL prefix in front of the party")
	pf.StringVarP(&fv.room, "room", "r", config.DefaultRoom, "room id")
	pf.StringVar(&fv.configPath, "config", "", "optional YAML config file")
	pf.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "debug|info|warn|error")
	// -h is taken by --host.
	pf.Bool("help", false, "help for watcher")

	f := rootCmd.Flags()
	f.BoolVarP(&fv.prune, "prune", "x", false, "remove every stored file from the room and exit")
	f.StringVar(&fv.dir, "dir", config.DefaultDir, "directory to watch")
	f.StringVar(&fv.suffix, "suffix", config.DefaultSuffix, "file name suffix to ship")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Remove every stored file from the room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, fv)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[watcher] targeting room %s on %s\n", cfg.Room, cfg.BaseURL())
			return runPrune(cmd.Context(), out, cfg)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "view",
		Short: "Follow the room and print the active file as it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, fv)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			v := viewer.New(cfg.StreamURL(), out)
			if f, ok := out.(*os.File); ok {
				v.Clear = term.IsTerminal(int(f.Fd()))
			}
			return v.Run(cmd.Context())
		},
	})

	return rootCmd
}

// loadConfig layers defaults, the config file, RELAY_* environment variables
// and explicitly set flags, then installs the logger.
func loadConfig(cmd *cobra.Command, fv flagValues) (config.WatcherConfig, error) {
	cfg, err := config.Load(fv.configPath)
	if err != nil {
		return config.WatcherConfig{}, err
	}
	cfg.ApplyEnv(os.Getenv)

	flags := cmd.Flags()
	w := &cfg.Watcher
	for name, pair := range map[string]struct {
		dst *string
		val string
	}{
		"host":      {&w.Host, fv.host},
		"protocol":  {&w.Protocol, fv.protocol},
		"party":     {&w.Party, fv.party},
		"prefix":    {&w.Prefix, fv.prefix},
		"room":      {&w.Room, fv.room},
		"log-level": {&w.LogLevel, fv.logLevel},
		"dir":       {&w.Dir, fv.dir},
		"suffix":    {&w.Suffix, fv.suffix},
	} {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*pair.dst = pair.val
		}
	}
	if flags.Lookup("prune") != nil && flags.Changed("prune") {
		w.Prune = fv.prune
	}

	if err := cfg.Validate(); err != nil {
		return config.WatcherConfig{}, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: w.SlogLevel()}))
	slog.SetDefault(logger)
	return *w, nil
}

// runWatch primes every tracked file, then ships changes until ctx ends.
func runWatch(ctx context.Context, out io.Writer, cfg config.WatcherConfig) error {
	ship := shipper.New(cfg)
	w, err := watch.New(watch.Options{
		Dir:          cfg.Dir,
		Suffix:       cfg.Suffix,
		IgnorePrefix: cfg.IgnorePrefix,
		Debounce:     cfg.Debounce,
	}, ship.Ship)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintf(out, "[watcher] watching *%s in %s\n", cfg.Suffix, w.Root())
	fmt.Fprintf(out, "[watcher] sending updates to %s\n", cfg.IngestURL())

	n, err := w.Prime()
	if err != nil {
		return err
	}
	slog.Info("watcher: primed existing files", "files", n)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ship.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return w.Run(ctx)
	})
	return g.Wait()
}

// runPrune clears the room. Any failure becomes a non-zero exit status.
func runPrune(ctx context.Context, out io.Writer, cfg config.WatcherConfig) error {
	fmt.Fprintf(out, "[watcher] pruning stored files via %s\n", cfg.PruneURL())
	n, err := shipper.New(cfg).Prune(ctx)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	removed := "unknown"
	if n >= 0 {
		removed = strconv.Itoa(n)
	}
	fmt.Fprintf(out, "[watcher] prune successful, removed %s file(s)\n", removed)
	return nil
}
