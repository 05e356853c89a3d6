package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"packsync-go/internal/app"
	"packsync-go/internal/config"
	"packsync-go/internal/repo"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the application defaults.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	path := defaults["config_path"]
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, path, nil
}

// newApp reads the config and creates an App. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(ctx, cfg, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "packsync",
	Short:        "Sync, index and sign score packs",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Index:    %s %s\n", cfg.Index.Type, cfg.Index.DataDir)
		fmt.Printf("Store:    %s\n", cfg.Store.Type)
		fmt.Printf("Repos:    %d\n", len(cfg.Repos))
		return nil
	},
}

// repo command
var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage remote repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add NAME KIND ROOT",
	Short: "Add a repository to sync",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, kind, root := args[0], args[1], args[2]
		if _, err := cid.Decode(root); err != nil {
			return fmt.Errorf("invalid root cid: %w", err)
		}
		if kind != repo.KindFlatMap && kind != repo.KindShardedMap {
			return fmt.Errorf("unknown repo kind %q", kind)
		}

		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if _, ok := cfg.FindRepo(name); ok {
			return fmt.Errorf("repo %q already exists", name)
		}
		cfg.Repos = append(cfg.Repos, config.RepoConfig{Name: name, Kind: kind, Root: root})
		if err := config.WriteToFile(path, cfg); err != nil {
			return err
		}

		fmt.Printf("Added repo %s\n", name)
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories and their sync position",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		repos, err := a.Repos(cmd.Context())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories configured.")
			return nil
		}
		for _, r := range repos {
			fmt.Printf("%-15s  %s  %s\n", r.Name, r.Address, r.Cursor)
		}
		return nil
	},
}

var repoSyncCmd = &cobra.Command{
	Use:   "sync [NAME...]",
	Short: "Sync repositories into the local index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		names := args
		if len(names) == 0 {
			repos, err := a.Repos(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range repos {
				names = append(names, r.Name)
			}
		}

		for _, name := range names {
			n, err := a.Sync(cmd.Context(), name, func(keys []string) {
				fmt.Printf("%s: ingested %d record(s)\n", name, len(keys))
			})
			if err != nil {
				return fmt.Errorf("syncing %s: %w", name, err)
			}
			fmt.Printf("%s: %d record(s) synced\n", name, n)
		}
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Query the local index",
}

var indexLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "List the most recently updated records",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Latest(cmd.Context(), page)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No records.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %-40s  %s\n", r.Updated.Format("2006-01-02 15:04"), r.Title, r.Pack)
		}
		return nil
	},
}

var indexCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count indexed records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var indexBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a snapshot of the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupIndex(args[0]); err != nil {
			return fmt.Errorf("backing up index: %w", err)
		}
		fmt.Printf("Index written to %s\n", args[0])
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if !run.FinishedAt.IsZero() {
				duration = run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %s  %-8s  %5d  %-10s  %s\n",
				run.ID,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				run.Ingested,
				duration,
				run.Address,
			)
			if run.Error != "" {
				fmt.Printf("          %s\n", run.Error)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// repo subcommands
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoSyncCmd)

	// index subcommands
	indexCmd.AddCommand(indexLatestCmd)
	indexLatestCmd.Flags().IntP("page", "p", 0, "Page number, starting at 0")
	indexCmd.AddCommand(indexCountCmd)
	indexCmd.AddCommand(indexBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
}
