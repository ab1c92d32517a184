// Package main is the entry point for the resonance CLI. It runs turns
// through the response-synthesis pipeline and manages the learned
// associative memory on disk.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"

	"github.com/normanking/resonance/internal/config"
	"github.com/normanking/resonance/internal/llm"
	"github.com/normanking/resonance/internal/logging"
	"github.com/normanking/resonance/internal/phrases"
	"github.com/normanking/resonance/internal/storage"
	"github.com/normanking/resonance/pkg/brain"
	"github.com/normanking/resonance/pkg/learning"
)

var (
	version   = "0.1.0"
	cfgPath   string
	dbPath    string
	driver    string
	verbose   bool
	logCloser io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "resonance",
		Short: "Resonance - turn-based response synthesis",
		Long: `Resonance scores each message across eleven dimensions, lets them
converge, classifies a safety zone and picks the safest fitting response.
What it learns about coupled dimensions is kept between sessions.

One turn:        resonance turn "I can't sleep since she left"
A conversation:  resonance session < transcript.txt
Memory:          resonance state show`,
		SilenceUsage:       true,
		PersistentPreRunE:  initLogging,
		PersistentPostRunE: closeLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.resonance/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default ~/.resonance/resonance.db)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "sql driver: sqlite (pure Go) or sqlite3 (cgo)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resonance v%s\n", version)
		},
	})
	rootCmd.AddCommand(turnCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(phrasesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		// Logging still comes up so the failure itself is reported.
		cfg = config.Default()
	}
	logCloser, err = logging.Setup(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Verbose: verbose,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	log.Debug().Str("config", getConfigPath()).Msg("logging initialized")
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if driver != "" {
		cfg.Storage.Driver = driver
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".resonance/config.yaml"
	}
	return filepath.Join(home, ".resonance", "config.yaml")
}

// app bundles what a command needs to process turns.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	store *learning.Store
	brain *brain.Brain
}

// openApp loads configuration, opens and loads the memory store, and
// wires the brain.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	rt := &app{cfg: cfg}
	var backend learning.Backend
	if cfg.Storage.DBPath != "" {
		rt.db, err = storage.Open(cfg.Storage.Driver, cfg.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		sb := storage.NewSQLiteBackend(rt.db)
		if err := sb.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		backend = sb
	}

	rt.store = learning.NewStore(backend)
	if err := rt.store.Load(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var opts []brain.Option
	if cfg.PhrasesPath != "" {
		table, err := phrases.Load(cfg.PhrasesPath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		opts = append(opts, brain.WithPhrases(table))
	}
	if cfg.LLM.Enabled {
		provider := llm.NewOllamaProvider(&cfg.LLM.Provider)
		if provider.Available() {
			opts = append(opts, brain.WithGenerator(llm.NewGenerator(provider, cfg.LLM.Provider.Model)))
		} else {
			cli := logging.Component("cli")
			cli.Warn().Str("endpoint", cfg.LLM.Provider.Endpoint).Msg("llm unavailable, using phrase table")
		}
	}

	rt.brain = brain.New(cfg.Brain, rt.store, opts...)
	return rt, nil
}

// persist saves learned state even when ctx was cancelled by a signal.
func (rt *app) persist(ctx context.Context) error {
	saveCtx, cancel := logging.DetachContextWithTimeout(ctx, 10*time.Second)
	defer cancel()
	return rt.store.Persist(saveCtx)
}

// Close releases the database.
func (rt *app) Close() error {
	if rt.db == nil {
		return nil
	}
	return rt.db.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
