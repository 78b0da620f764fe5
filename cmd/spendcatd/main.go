// Package main implements the spendcat CLI for classifying merchant names
// and operating the self-learning classifier.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/spendcat/internal/category"
	"github.com/fyrsmithlabs/spendcat/internal/classifier"
	"github.com/fyrsmithlabs/spendcat/internal/config"
	"github.com/fyrsmithlabs/spendcat/internal/embeddings"
	"github.com/fyrsmithlabs/spendcat/internal/logging"
	"github.com/fyrsmithlabs/spendcat/internal/oracle"
	"github.com/fyrsmithlabs/spendcat/internal/rules"
	"github.com/fyrsmithlabs/spendcat/internal/store"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "spendcatd",
	Short: "Merchant-name spending-category classifier",
	Long: `spendcatd classifies free-form merchant and store names into spending
categories through a tiered cache/fallback pipeline, learning from manual
corrections and minimizing calls to the classification oracle.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/spendcat/config.yaml)")
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(reclassifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(resetCmd)
}

// app bundles the wired services behind every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *store.DB
	service *classifier.Service
	records *classifier.InMemoryRecordStore
	watcher *rules.Watcher
}

// setup wires the full service stack from config.
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewService(cfg.Embeddings, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	categories := category.DefaultCategories()
	if len(cfg.Categories) > 0 {
		categories = categories[:0]
		for _, c := range cfg.Categories {
			categories = append(categories, category.Category(c))
		}
	}

	oracleClient, err := oracle.NewLLMClient(cfg.Oracle, categories, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	engine := rules.NewDefaultEngine()
	var watcher *rules.Watcher
	if cfg.Rules.Path != "" {
		loaded, err := rules.LoadFile(cfg.Rules.Path)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		engine.Reload(loaded)
		if cfg.Rules.Watch {
			watcher, err = rules.Watch(cfg.Rules.Path, engine, logger)
			if err != nil {
				logger.Warn("rules watcher unavailable", zap.Error(err))
			}
		}
	}

	records := classifier.NewInMemoryRecordStore()
	service := classifier.NewService(
		db.Mappings(),
		db.Embeddings(),
		records,
		embedder,
		oracleClient,
		engine,
		classifier.WithLogger(logger),
		classifier.WithThresholds(cfg.Thresholds),
		classifier.WithRoundProgress(func(round, updated, remaining int) {
			fmt.Printf("round %d: %d records updated, %d names remaining\n", round, updated, remaining)
		}),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		service: service,
		records: records,
		watcher: watcher,
	}, nil
}

// close releases the app's resources.
func (a *app) close() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	_ = a.db.Close()
	_ = a.logger.Sync()
}
