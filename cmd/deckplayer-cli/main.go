// Command deckplayer-cli checks decks and edits the player's stored
// preferences without opening a window.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"deckplayer/internal/addon"
	"deckplayer/internal/deck"
	"deckplayer/internal/i18n"
	"deckplayer/internal/registry"
	"deckplayer/internal/settings"
	"deckplayer/internal/slideshow"
)

// Version is the player version addons are checked against.
var Version = "1.0.0"

var (
	dataDirFlag string
	store       *settings.Store
)

func cliLogger(msg string) {
	log.Printf("[deckplayer-cli] %s", msg)
}

// builtinComponents lists the components the player window registers.
var builtinComponents = []string{
	"Image",
	"TerminalAnimation",
	"Icon:Description",
	"Icon:FactCheck",
	"Icon:Memory",
	"Icon:PlaylistAddCheck",
	"Icon:Search",
	"Icon:Traffic",
}

// NewRootCmd creates the root command. openStore opens the settings database
// in a directory, so tests can point it elsewhere.
func NewRootCmd(openStore func(dataDir string, logger settings.LoggerFunc) (*settings.Store, error)) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:           "deckplayer-cli",
		Short:         "deckplayer CLI - validate decks and manage player settings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// withStore opens the settings database around run and closes it
	// whether or not run fails.
	withStore := func(run func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			var err error
			store, err = openStore(dataDirFlag, cliLogger)
			if err != nil {
				return fmt.Errorf("failed to open settings: %w", err)
			}
			defer func() {
				store.Close() //nolint:errcheck // read or single write already done
				store = nil
			}()
			return run(cmd, args)
		}
	}

	// Validate command
	validateCmd := &cobra.Command{
		Use:   "validate [deck]",
		Short: "Check a deck file, URL or s3:// object and list every violation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := deck.NewSource(args[0], s3FromEnv())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			raw, err := src.Fetch(ctx)
			if err != nil {
				return err
			}
			tree, err := deck.Parse(raw, deck.FormatFor(src.Location()))
			if err != nil {
				return err
			}
			errs := deck.GetValidationErrors(tree)
			if len(errs) == 0 {
				d := deck.Load(tree, nil, slog.New(slog.DiscardHandler))
				cmd.Printf("%s: valid, %d slides (%s)\n", args[0], len(d.Slides), d.Meta.Title)
				return nil
			}
			for _, e := range errs {
				cmd.Println(e.String())
			}
			return fmt.Errorf("%w: %d violations", deck.ErrInvalidDeck, len(errs))
		},
	}
	rootCmd.AddCommand(validateCmd)

	// Scroll speed commands
	speedCmd := &cobra.Command{
		Use:   "speed",
		Short: "Show or change the stored auto-slideshow scroll speed",
	}
	speedGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the stored scroll speed in seconds",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			speed, ok, err := store.LoadScrollSpeed()
			if err != nil {
				return err
			}
			if !ok {
				cmd.Printf("%d (default)\n", slideshow.DefaultScrollSpeed)
				return nil
			}
			cmd.Println(speed)
			return nil
		}),
	}
	speedSetCmd := &cobra.Command{
		Use:   "set [seconds]",
		Short: fmt.Sprintf("Store a scroll speed between %d and %d seconds", slideshow.MinScrollSpeed, slideshow.MaxScrollSpeed),
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			speed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("scroll speed %q is not a number", args[0])
			}
			if speed < slideshow.MinScrollSpeed || speed > slideshow.MaxScrollSpeed {
				return fmt.Errorf("%w: %d", slideshow.ErrScrollSpeedOutOfRange, speed)
			}
			if err := store.SaveScrollSpeed(speed); err != nil {
				return err
			}
			cmd.Printf("Scroll speed set to %d seconds.\n", speed)
			return nil
		}),
	}
	speedCmd.AddCommand(speedGetCmd, speedSetCmd)
	rootCmd.AddCommand(speedCmd)

	// Locale commands
	var localesDir string
	locales := func() []i18n.LocaleResource {
		logger := slog.New(slog.DiscardHandler)
		builtin := i18n.Builtin(logger)
		if localesDir == "" {
			return builtin
		}
		return i18n.Merge(builtin, i18n.LoadLocales(os.DirFS(localesDir), logger))
	}
	localeCmd := &cobra.Command{
		Use:   "locale",
		Short: "Show, change or list UI languages",
	}
	localeCmd.PersistentFlags().StringVar(&localesDir, "locales-dir", "", "Directory with extra locale files and a manifest.json")
	localeListCmd := &cobra.Command{
		Use:   "list",
		Short: "List the available languages",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, l := range locales() {
				cmd.Printf("%s\t%s\n", l.LanguageCode, l.LanguageName)
			}
		},
	}
	localeGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the stored language",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			code, err := store.LoadLocale()
			if err != nil {
				return err
			}
			if code == "" {
				cmd.Println("No language stored; the system language is used.")
				return nil
			}
			cmd.Println(code)
			return nil
		}),
	}
	localeSetCmd := &cobra.Command{
		Use:   "set [code]",
		Short: "Store the UI language, e.g. ja-JP",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			tr := i18n.NewTranslator(locales(), "", store, slog.New(slog.DiscardHandler))
			if !tr.SetLocale(args[0]) {
				return fmt.Errorf("unknown language %q; see 'deckplayer-cli locale list'", args[0])
			}
			cmd.Printf("Language set to %s.\n", args[0])
			return nil
		}),
	}
	localeCmd.AddCommand(localeListCmd, localeGetCmd, localeSetCmd)
	rootCmd.AddCommand(localeCmd)

	// Components command
	var addonsDir string
	componentsCmd := &cobra.Command{
		Use:   "components",
		Short: "List the slide components a deck can use, including addons",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			reg := registry.New(func(string) string { return "" })
			for _, name := range builtinComponents {
				reg.RegisterDefault(name, "built-in")
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			addon.Install(reg, addon.NewLoader(Version, logger).Load(addonsDir), func(c *addon.Component) string {
				return "addon " + c.Addon
			})
			for _, name := range reg.List() {
				cmd.Printf("%s (%s)\n", name, reg.Resolve(name))
			}
		},
	}
	componentsCmd.Flags().StringVar(&addonsDir, "addons-dir", "", "Directory with addon bundles or a manifest.json")
	rootCmd.AddCommand(componentsCmd)

	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory of the settings database")

	return rootCmd
}

// s3FromEnv reads S3 credentials the way the AWS tools name them.
func s3FromEnv() deck.S3Options {
	return deck.S3Options{
		Endpoint:        os.Getenv("AWS_ENDPOINT_URL_S3"),
		Region:          os.Getenv("AWS_REGION"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
}

func main() {
	rootCmd := NewRootCmd(settings.Open)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
