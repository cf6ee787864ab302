package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/config"
	"github.com/matthewjhunter/newsalert/internal/logging"
	"github.com/matthewjhunter/newsalert/internal/output"
	"github.com/matthewjhunter/newsalert/internal/storage"
)

var (
	configPath   string
	cfg          *config.Config
	outputFormat string
	logger       *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "newsalert",
		Short:         "News alerting backend: feed ingestion, tagging, and critical article alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "output format: json, text, human (default: json)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(readCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(initConfigCmd())
	return rootCmd
}

func loadConfig() error {
	if configPath == "" {
		configPath = config.DefaultPath
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

func formatter() *output.Formatter {
	return output.NewFormatter(output.Format(outputFormat))
}

// openStore opens the configured database for the admin commands. They
// manage the schema themselves, so auto-migration is off.
func openStore(ctx context.Context) (*storage.SQLStore, error) {
	opts := cfg.StoreOptions()
	opts.AutoMigrate = false
	store, err := storage.Open(ctx, opts, logger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func openEngine(ctx context.Context, readOnly bool) (*newsalert.Engine, error) {
	engineCfg := cfg.EngineConfig(logger)
	engineCfg.ReadOnly = readOnly
	engine, err := newsalert.NewEngine(ctx, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the articles table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			version, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			return formatter().OutputStatus("migrated", map[string]interface{}{"version": version},
				fmt.Sprintf("Schema is at version %d", version))
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the articles table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes every stored article; pass --yes to confirm")
			}
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Reset(ctx); err != nil {
				return err
			}
			return formatter().OutputStatus("reset", nil, "Articles table recreated")
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deleting all articles")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Seed(ctx)
			if err != nil {
				return err
			}
			return formatter().OutputStatus("seeded", map[string]interface{}{"count": n},
				fmt.Sprintf("Seeded %d articles", n))
		},
	}
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Describe the articles table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			version, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			columns, err := store.Columns(ctx)
			if err != nil {
				return err
			}
			return formatter().OutputSchema(version, columns)
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch every configured feed once and store new articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx, false)
			if err != nil {
				return err
			}
			defer engine.Close()

			f := formatter()
			result, err := engine.Ingest(ctx)
			if err != nil {
				return err
			}
			for _, msg := range result.Errors {
				f.Warning("%s", msg)
			}
			return f.OutputIngestResult(result)
		},
	}
}

func listCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:       "list <recent|top|critical|critical-all|page>",
		Short:     "Show one of the article feeds",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"recent", "top", "critical", "critical-all", "page"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, err := openEngine(ctx, true)
			if err != nil {
				return err
			}
			defer engine.Close()

			var (
				heading  string
				articles []newsalert.Article
			)
			switch args[0] {
			case "recent":
				heading = "Recent news"
				articles, err = engine.RecentNews(ctx)
			case "top":
				heading = "Top articles"
				articles, err = engine.TopArticles(ctx)
			case "critical":
				heading = "Critical articles"
				articles, err = engine.CriticalArticles(ctx)
			case "critical-all":
				heading = "Critical articles (all)"
				articles, err = engine.CriticalArticlesAll(ctx)
			case "page":
				p, l := newsalert.NormalizePage(page, limit)
				heading = fmt.Sprintf("Other news, page %d", p)
				articles, err = engine.OtherNews(ctx, p, l)
			default:
				return fmt.Errorf("unknown feed %q", args[0])
			}
			if err != nil {
				return err
			}
			return formatter().OutputArticleList(heading, articles)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", newsalert.DefaultPage, "page number for the page feed")
	cmd.Flags().IntVarP(&limit, "limit", "n", newsalert.DefaultPageLimit, "page size for the page feed")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <article-id>",
		Short: "Acknowledge an article so it leaves the critical feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid article ID: %w", err)
			}

			ctx := cmd.Context()
			engine, err := openEngine(ctx, true)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.MarkRead(ctx, articleID); err != nil {
				return err
			}
			return formatter().OutputStatus("marked_read", map[string]interface{}{"id": articleID},
				fmt.Sprintf("Marked article %d as read", articleID))
		},
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file (YAML, or TOML for a .toml path)",
		// The config being created may not parse yet; skip loading it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = config.DefaultPath
			}
			if err := config.Default().Write(configPath); err != nil {
				return err
			}
			return formatter().OutputStatus("config_created",
				map[string]interface{}{"path": configPath},
				fmt.Sprintf("Created default config at %s", configPath))
		},
	}
}
