// Package main provides the entry point for the Nebula CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/85Ryan/Nebula/internal/audio"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	backend    string
	dataDir    string

	rootCmd = &cobra.Command{
		Use:   "nebula [DOC_ID]",
		Short: "Write, voice and play scripts from the terminal",
		Long: paragraph(
			fmt.Sprintf("\nWrite scripts, %s them with Gemini voices and play them back.", keyword("voice")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if f := cmd.Flags().Lookup("config"); f != nil && f.Changed {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	// grab config values from Viper
	backend = viper.GetString("audio")
	dataDir = viper.GetString("data_dir")

	if _, err := audio.ParseBackendKind(backend); err != nil {
		return err
	}
	if viper.GetInt("rate_limit") < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %d", viper.GetInt("rate_limit"))
	}

	loadDotenv()
	return nil
}

// execute plays a document in the player, the newest one if no id is given.
func execute(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return cmd.Help()
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if len(args) == 1 {
		if err := a.selectDocument(ctx, args[0]); err != nil {
			return err
		}
	}
	return a.play(ctx, true)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVar(&backend, "audio", "auto", "audio output: auto, oto or mock")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory for documents, settings and previews")

	// Config bindings
	_ = viper.BindPFlag("audio", rootCmd.PersistentFlags().Lookup("audio"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	viper.SetDefault("audio", "auto")
	viper.SetDefault("base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("timeout", "2m")
	viper.SetDefault("rate_limit", 30)
	viper.SetDefault("cache.memory_mb", 32)
	viper.SetDefault("cache.disk_mb", 256)
	viper.SetDefault("cache.compression", 3)
	viper.SetDefault("cache.ttl", "720h")

	rootCmd.AddCommand(
		configCmd,
		manCmd,
		generateCmd,
		playCmd,
		exportCmd,
		docsCmd,
		voicesCmd,
		tonesCmd,
		settingsCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "nebula")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "nebula")}, dirs...)
	}

	if c := os.Getenv("NEBULA_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("nebula")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("nebula")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "nebula.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
