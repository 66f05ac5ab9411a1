// Package main is the entry point for the mnemo CLI, a local-first memory
// retrieval engine: it stores short text memories per user and retrieves
// the most relevant ones for a query.
package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/mnemo/internal/config"
	"github.com/normanking/mnemo/internal/embedding"
	"github.com/normanking/mnemo/internal/logging"
	"github.com/normanking/mnemo/internal/memory"
)

var (
	version = "0.1.0"
	cfgPath string
	dbPath  string
	verbose bool

	cfg *config.Config
	db  *sql.DB
	svc *memory.Service
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "mnemo",
		Short:             "Per-user memory storage and relevance-ranked retrieval",
		Version:           version,
		PersistentPreRunE: initService,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				db.Close()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.mnemo/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		addCmd(),
		searchCmd(),
		clusterCmd(),
		summarizeCmd(),
		sessionsCmd(),
		cleanupCmd(),
		deleteCmd(),
		clearCmd(),
		statsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initService(cmd *cobra.Command, args []string) error {
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(logging.Config{Level: level, Console: true})

	path := cfg.Store.Path
	if dbPath != "" {
		path = dbPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	db, err = sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	store, err := memory.NewSQLiteStore(db, memory.SQLiteStoreConfig{
		MaxPerOwner: cfg.Store.MaxMemoriesPerOwner,
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	embedder := embedding.NewOllamaEmbedder(embedding.Config{
		Host:          cfg.Embedding.Host,
		Model:         cfg.Embedding.Model,
		Timeout:       time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		CacheDisabled: cfg.Embedding.CacheDisabled,
	})
	if !embedder.Available() {
		zlog.Warn().Str("host", cfg.Embedding.Host).Msg("embedding provider unavailable, searches will use lexical matching")
	}

	svc = memory.NewService(store, memory.WithEmbedder(embedder))
	return nil
}

func addCmd() *cobra.Command {
	var memType, sessionID string
	cmd := &cobra.Command{
		Use:   "add <owner> <content>",
		Short: "Store a memory for an owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := svc.Add(cmd.Context(), args[0], args[1], memory.MemoryType(memType), sessionID, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %s\n", rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&memType, "type", "conversation", "memory type (conversation|question|fact|preference|instruction)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id for later bulk cleanup")
	return cmd
}

func searchCmd() *cobra.Command {
	var opts memory.SearchOptions
	var strategy, memType, timeRange string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <owner> <query>",
		Short: "Retrieve the most relevant memories for a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Strategy = memory.Strategy(strategy)
			opts.Type = memory.MemoryType(memType)
			opts.TimeRange = memory.TimeRange(timeRange)

			result := svc.Search(cmd.Context(), args[0], args[1], opts)
			if !result.Success {
				return fmt.Errorf("search failed: %s", result.Error)
			}

			if asJSON {
				return printJSON(result)
			}
			if len(result.Results) == 0 {
				fmt.Println("No matching memories.")
				return nil
			}
			for i, r := range result.Results {
				fmt.Printf("%d. [%.3f] (%s) %s\n", i+1, r.Relevance, r.Type, r.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 5, "maximum results")
	cmd.Flags().StringVar(&strategy, "strategy", string(memory.StrategyHierarchical), "search strategy (hierarchical|semantic|hybrid|keyword|fuzzy)")
	cmd.Flags().StringVar(&memType, "type", "", "filter by memory type")
	cmd.Flags().StringVar(&timeRange, "time-range", "all", "filter by age (hour|day|week|month|all)")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "filter by session id")
	cmd.Flags().Float64Var(&opts.MinConfidence, "min-confidence", 0.1, "minimum confidence")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func clusterCmd() *cobra.Command {
	var clusterType string
	var maxClusters int
	var threshold float64

	cmd := &cobra.Command{
		Use:   "cluster <owner>",
		Short: "Group an owner's memories by topic or time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clusters, err := svc.Cluster(cmd.Context(), args[0], nil, memory.ClusterOptions{
				Type:                memory.ClusterType(clusterType),
				MaxClusters:         maxClusters,
				SimilarityThreshold: threshold,
			})
			if err != nil {
				return err
			}
			for _, c := range clusters {
				fmt.Printf("%s (%d members, avg relevance %.2f)\n", c.ID, len(c.Members), c.AvgRelevance)
				for _, m := range c.Members {
					fmt.Printf("  - %s\n", m.Content)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clusterType, "type", string(memory.ClusterTopic), "cluster type (topic|temporal|semantic)")
	cmd.Flags().IntVar(&maxClusters, "max", 5, "maximum clusters")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "similarity threshold for topic clustering")
	return cmd
}

func summarizeCmd() *cobra.Command {
	var style string
	var maxLength, limit int
	var includeRelevance, groupByTopic bool

	cmd := &cobra.Command{
		Use:   "summarize <owner> <query>",
		Short: "Render the memories relevant to a query as a context block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := svc.Search(cmd.Context(), args[0], args[1], memory.SearchOptions{Limit: limit})
			if !result.Success {
				return fmt.Errorf("search failed: %s", result.Error)
			}

			summary, err := svc.Summarize(result.Results, args[1], maxLength, memory.SummaryOptions{
				Style:            memory.SummaryStyle(style),
				IncludeRelevance: includeRelevance,
				GroupByTopic:     groupByTopic,
			})
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&style, "style", string(memory.SummaryKeyPoints), "summary style (key_points|narrative|structured)")
	cmd.Flags().IntVar(&maxLength, "max-length", memory.DefaultSummaryLength, "character budget")
	cmd.Flags().IntVar(&limit, "limit", 10, "memories to consider")
	cmd.Flags().BoolVar(&includeRelevance, "relevance", false, "annotate items with relevance scores")
	cmd.Flags().BoolVar(&groupByTopic, "group", false, "group structured summaries by memory type")
	return cmd
}

func sessionsCmd() *cobra.Command {
	var limit int
	var memType string

	cmd := &cobra.Command{
		Use:   "sessions <owner> <session-id>",
		Short: "List an owner's memories for one session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := svc.GetSessionMemories(cmd.Context(), args[0], args[1], limit, memory.MemoryType(memType))
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s  (%s) %s\n", r.CreatedAt.Format(time.RFC3339), r.Type, r.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "keep only the newest N")
	cmd.Flags().StringVar(&memType, "type", "", "filter by memory type")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <session-id>",
		Short: "Remove a session's memories across all owners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := svc.CleanupSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d memories\n", removed)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <owner> <memory-id>",
		Short: "Delete a single memory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Delete(cmd.Context(), args[0], args[1])
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <owner>",
		Short: "Delete all of an owner's memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := svc.Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d memories\n", removed)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
