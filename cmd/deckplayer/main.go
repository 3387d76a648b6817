// Command deckplayer presents a slide deck in a Fyne window and serves the
// presenter-view channel. `deckplayer presenter` runs the presenter view.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"deckplayer/internal/addon"
	"deckplayer/internal/audio"
	"deckplayer/internal/channel"
	"deckplayer/internal/config"
	"deckplayer/internal/deck"
	"deckplayer/internal/i18n"
	"deckplayer/internal/navigation"
	"deckplayer/internal/player"
	"deckplayer/internal/presenter"
	"deckplayer/internal/server"
	"deckplayer/internal/settings"
	"deckplayer/internal/theme"
	"deckplayer/internal/ui"
)

// Version is the player version addons are checked against. Set with
// -ldflags "-X main.Version=...".
var Version = "1.0.0"

const appID = "io.github.deckplayer"

// flags are the persistent overrides shared by every subcommand.
type flags struct {
	configPath string
	deck       string
	listen     string
	dataDir    string
	transport  string
	debug      bool
}

type (
	mainFunc      func(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler *ui.LogHandler) error
	presenterFunc func(ctx context.Context, cfg *config.Config, opts presenterOptions, logger *slog.Logger) error
)

// NewRootCmd builds the command tree. run starts the main presentation and
// runPresenter the presenter view; tests replace both.
func NewRootCmd(run mainFunc, runPresenter presenterFunc) *cobra.Command {
	var f flags
	rootCmd := &cobra.Command{
		Use:           "deckplayer",
		Short:         "deckplayer - slide presentation player with presenter view",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			handler, logger := newLogger(f.debug)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, handler)
		},
	}
	rootCmd.PersistentFlags().StringVar(&f.configPath, "config", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&f.deck, "deck", "", "Deck location: file path, http(s) URL or s3://bucket/key")
	rootCmd.PersistentFlags().StringVar(&f.listen, "listen", "", "Address the channel server listens on")
	rootCmd.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "Directory of the settings database")
	rootCmd.PersistentFlags().StringVar(&f.transport, "transport", "", "Channel transport: websocket or redis")
	rootCmd.PersistentFlags().BoolVar(&f.debug, "debug", false, "Log at debug level")

	rootCmd.AddCommand(newPresenterCmd(&f, runPresenter))
	return rootCmd
}

// load reads the config file, applies flag overrides and validates.
func (f *flags) load(cmd *cobra.Command) (*config.Config, error) {
	_, logger := newLogger(f.debug)
	cfg, err := config.Load(f.configPath, logger)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("deck") {
		cfg.Deck = f.deck
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = f.listen
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if cmd.Flags().Changed("transport") {
		cfg.Transport = f.transport
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger mirrors warnings into the status log panel and writes every
// record to stderr.
func newLogger(debug bool) (*ui.LogHandler, *slog.Logger) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := ui.NewLogHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}), slog.LevelWarn)
	return handler, slog.New(handler)
}

// runMain wires the main presentation and blocks until its window closes.
func runMain(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler *ui.LogHandler) error {
	slog.SetDefault(logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		logger.Warn("using the working directory for settings", "error", err)
	}
	store, err := settings.Open(dataDir, func(msg string) { logger.Debug(msg, "component", "settings") })
	if err != nil {
		return config.WrapError("open settings", err)
	}
	defer store.Close() //nolint:errcheck // shutdown

	src, err := deck.NewSource(cfg.Deck, cfg.S3Options())
	if err != nil {
		logger.Warn("unusable deck location, using built-in deck", "deck", cfg.Deck, "error", err)
	}
	fetchCtx, cancelFetch := context.WithTimeout(ctx, 30*time.Second)
	d := deck.Fetch(fetchCtx, src, deck.Default(), logger)
	cancelFetch()

	tr := i18n.NewTranslator(loadLocales(cfg, logger), cfg.Locale, store, logger)

	components := newComponents(cfg, logger)

	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close() //nolint:errcheck // shutdown
	ep, err := broker.Join(ctx, presenter.ChannelName)
	if err != nil {
		return config.WrapError("join presenter channel", err)
	}
	defer ep.Close() //nolint:errcheck // shutdown

	opener, err := presenter.NewProcessOpener(logger)
	if err != nil {
		return config.WrapError("prepare presenter view", err)
	}
	link := presenter.NewLink(ep, d.Slides, opener, cfg.ChannelURL(presenter.ChannelName), logger)

	narration := audio.NewController(audio.NewBeepBackend(cfg.AssetBase()), logger)
	orch := player.New(player.Options{
		Deck:   d,
		Engine: navigation.NewLinear(len(d.Slides)),
		Audio:  narration,
		Link:   link,
		Store:  store,
		Logger: logger,
	})
	if err := orch.Start(ctx); err != nil {
		return config.WrapError("start presentation", err)
	}
	defer orch.Close()

	srv, err := server.New(cfg.Listen, orch, channel.NewHub(broker, logger), logger).Start()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "error", err)
		}
	}()

	if cfg.Watch {
		if _, ok := src.(*deck.FileSource); ok {
			go func() {
				if err := deck.Watch(ctx, cfg.Deck, deck.Default(), logger, orch.ReloadDeck); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("deck watch stopped", "error", err)
				}
			}()
		} else {
			logger.Warn("watch only applies to deck files", "deck", cfg.Deck)
		}
	}

	a := app.NewWithID(appID)
	go func() {
		<-ctx.Done()
		fyne.Do(a.Quit)
	}()
	baseDir := cfg.AssetBase()
	ui.New(ui.Options{
		App:        a,
		Player:     orch,
		Translator: tr,
		Components: components,
		BuildTheme: func(d *deck.Deck) *theme.Theme {
			return theme.Build(ctx, nil, d, cfg.ThemeColors, baseDir, cfg.S3Options(), logger)
		},
		AssetBase:  baseDir,
		LogHandler: handler,
		Logger:     logger,
		Version:    Version,
	}).Run(ctx)
	return nil
}

func loadLocales(cfg *config.Config, logger *slog.Logger) []i18n.LocaleResource {
	locales := i18n.Builtin(logger)
	if cfg.LocalesDir == "" {
		return locales
	}
	return i18n.Merge(locales, i18n.LoadLocales(os.DirFS(cfg.LocalesDir), logger))
}

// newComponents returns the built-in components overlaid with addons.
func newComponents(cfg *config.Config, logger *slog.Logger) *ui.Components {
	dir := cfg.AddonsDir
	if cfg.AddonsManifest != "" {
		dir = filepath.Dir(cfg.AddonsManifest)
	}
	components := ui.NewComponents()
	if n := ui.InstallAddons(components, addon.NewLoader(Version, logger).Load(dir)); n > 0 {
		logger.Info("addon components installed", "count", n)
	}
	return components
}

// newBroker returns the channel backbone. The websocket hub bridges remote
// presenter views into it either way.
func newBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (channel.Broker, error) {
	switch cfg.Transport {
	case config.TransportRedis:
		b, err := channel.NewRedisBroker(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			return nil, config.WrapError("connect to redis", err)
		}
		return b, nil
	default:
		return channel.NewMemoryBroker(logger), nil
	}
}

func main() {
	rootCmd := NewRootCmd(runMain, runPresenter)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
