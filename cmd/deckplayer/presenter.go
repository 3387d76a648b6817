package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"deckplayer/internal/channel"
	"deckplayer/internal/config"
	"deckplayer/internal/i18n"
	"deckplayer/internal/presenter"
	"deckplayer/internal/ui"
)

// presenterOptions selects how the presenter view reaches the channel.
type presenterOptions struct {
	url       string
	redisAddr string
}

func newPresenterCmd(f *flags, run presenterFunc) *cobra.Command {
	var opts presenterOptions
	cmd := &cobra.Command{
		Use:   "presenter",
		Short: "Open the presenter view for a running presentation",
		Long: `Open the presenter view: speaker notes, summary, next and previous slide
previews and the presentation controls. It follows the main window over the
presenter-view channel, by websocket (--url) or directly over Redis (--redis).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if opts.url == "" && opts.redisAddr == "" {
				opts.url = cfg.ChannelURL(presenter.ChannelName)
			}
			_, logger := newLogger(f.debug)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "Websocket URL of the presenter-view channel")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "", "Join the channel over Redis at host:port instead")
	cmd.MarkFlagsMutuallyExclusive("url", "redis")
	return cmd
}

// joinPresenterChannel dials the channel the presenter view follows.
func joinPresenterChannel(ctx context.Context, opts presenterOptions, logger *slog.Logger) (channel.Endpoint, func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if opts.redisAddr != "" {
		b, err := channel.NewRedisBroker(dialCtx, opts.redisAddr, logger)
		if err != nil {
			return nil, nil, config.WrapError("connect to redis", err)
		}
		ep, err := b.Join(ctx, presenter.ChannelName)
		if err != nil {
			b.Close() //nolint:errcheck // failed join
			return nil, nil, config.WrapError("join presenter channel", err)
		}
		return ep, func() { b.Close() }, nil //nolint:errcheck // shutdown
	}
	ep, err := channel.Dial(dialCtx, opts.url, logger)
	if err != nil {
		return nil, nil, config.WrapError("join presenter channel", err)
	}
	return ep, func() {}, nil
}

func runPresenter(ctx context.Context, cfg *config.Config, opts presenterOptions, logger *slog.Logger) error {
	slog.SetDefault(logger)
	logger = logger.With("window", "presenter")

	ep, release, err := joinPresenterChannel(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer release()

	follower := presenter.NewFollower(ep, logger)
	defer follower.Close() //nolint:errcheck // idempotent

	// The main window holds the settings database, so the presenter view
	// picks its locale without the stored preference.
	tr := i18n.NewTranslator(loadLocales(cfg, logger), cfg.Locale, nil, logger)
	components := newComponents(cfg, logger)

	a := app.NewWithID(appID + ".presenter")
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := follower.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("presenter channel closed", "error", err)
		}
		// The main window went away; there is nothing left to follow.
		fyne.Do(a.Quit)
	}()
	if err := follower.Announce(runCtx); err != nil {
		return config.WrapError("announce presenter view", err)
	}

	ui.NewPresenterWindow(a, follower, tr, components, cfg.AssetBase(), logger).Run(runCtx)
	return nil
}
