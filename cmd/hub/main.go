package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/malone1029/nia-results-tracker-sub003/internal/app"
	"github.com/malone1029/nia-results-tracker-sub003/internal/config"
	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/migrate"
	"github.com/malone1029/nia-results-tracker-sub003/internal/repo"
	"github.com/malone1029/nia-results-tracker-sub003/internal/server"
	hubsdk "github.com/malone1029/nia-results-tracker-sub003/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "hub",
	Short: "NIA Excellence Hub readiness service",
	Long: `hub scores documented processes for Baldrige readiness and keeps a daily trend of the
organization score.
- Health: each process is scored out of 100 across documentation, maturity, measurement,
  operations and freshness, with next actions for the largest gaps.
- Readiness: health totals roll up into an organization score (key processes count double),
  category scores and dimension averages.
- Snapshots: one row per calendar day; saving again the same day overwrites the values.
- Workspace: hub.yml plus the .hub/hub.db sqlite file, or a postgres database via database.dsn.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NIA_HUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/hub.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "cli", "actor recorded on events")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug|info|warn|error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(readinessCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// applyOverrides layers NIA_HUB_* environment variables and bound flags over
// the config file.
func applyOverrides(c *config.Config) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(viper.GetString(key)); v != "" {
			*dst = v
		}
	}
	setString("server.addr", &c.Server.Addr)
	setString("server.base_path", &c.Server.BasePath)
	setString("database.driver", &c.Database.Driver)
	setString("database.dsn", &c.Database.DSN)
	setString("auth.jwt_secret", &c.Auth.JWTSecret)
	setString("snapshot.timezone", &c.Snapshot.Timezone)
	setString("log.level", &c.Log.Level)
	setString("log.format", &c.Log.Format)
	if viper.IsSet("auth.allow_anonymous") {
		c.Auth.AllowAnonymous = viper.GetBool("auth.allow_anonymous")
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigFile: viper.GetString("config"),
		Override:   applyOverrides,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Manage hub.yml"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default hub.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (secrets omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if path := viper.GetString("config"); path != "" {
				cfg, err = config.FromFile(path)
			}
			if err != nil {
				return err
			}
			applyOverrides(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := migrate.Version(a.DB)
				if err != nil {
					return err
				}
				latest, err := migrate.Latest(db.Dialect(a.Config.Database.Driver))
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d of %d (%s)\n", v, latest, a.Config.Database.Driver)
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load categories, processes, metrics and tasks from a seed YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := engine.ParseSeed(f)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Import(ctx, seed, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("imported %d categories, %d processes, %d adli scores, %d tasks, %d improvements, %d metrics (%d links, %d entries)\n",
					res.Categories, res.Processes, res.ADLIScores, res.Tasks, res.Improvements, res.Metrics, res.Links, res.Entries)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func healthCmd() *cobra.Command {
	var owner, category string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Score every process and print the readiness summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				results, err := a.Engine.HealthResults(ctx, repo.ProcessFilters{Owner: owner, CategoryID: category})
				if err != nil {
					return err
				}
				sum, err := a.Engine.Summary(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"processes": results, "summary": sum})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Process", "Category", "Owner", "Key", "Total", "Level", "Next action"})
				for _, r := range results {
					next := ""
					if len(r.Health.NextActions) > 0 {
						na := r.Health.NextActions[0]
						next = fmt.Sprintf("%s (+%d)", na.Label, na.Points)
					}
					tw.AppendRow(table.Row{r.Process.Name, r.Process.CategoryName, r.Process.Owner, r.Process.IsKey, r.Health.Total, r.Health.Level.Label, next})
				}
				tw.AppendFooter(table.Row{"", "", "", "", sum.OrgScore, fmt.Sprintf("%d/%d ready", sum.ReadyCount, sum.ProcessCount), fmt.Sprintf("ADLI rollup %d", sum.ADLIRollup)})
				tw.Render()
				if owner != "" {
					fmt.Printf("org score %d for %s (organization %d, delta %+d)\n", sum.OrgScore, owner, sum.UnfilteredOrgScore, sum.OrgScoreDelta)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only processes owned by this name or email")
	cmd.Flags().StringVar(&category, "category", "", "only processes in this category id")
	return cmd
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{Use: "snapshot", Short: "Readiness snapshots"}
	snap.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListSnapshots(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printSnapshots(items)
				return nil
			})
		},
	})
	snap.AddCommand(&cobra.Command{
		Use:   "take",
		Short: "Compute the aggregate and upsert today's snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.RefreshSnapshot(ctx, viper.GetString("actor-id"), engine.TriggerCLI)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	})
	return snap
}

func printSnapshots[T any](items []T) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Date", "Org score", "Processes", "Ready"})
	for _, item := range items {
		var row struct {
			SnapshotDate string  `json:"snapshot_date"`
			OrgScore     float64 `json:"org_score"`
			ProcessCount int     `json:"process_count"`
			ReadyCount   int     `json:"ready_count"`
		}
		b, _ := json.Marshal(item)
		_ = json.Unmarshal(b, &row)
		tw.AppendRow(table.Row{row.SnapshotDate, row.OrgScore, row.ProcessCount, row.ReadyCount})
	}
	tw.Render()
}

// readinessCmd loads the readiness page state from a running server, which
// also saves today's snapshot when it is missing.
func readinessCmd() *cobra.Command {
	var baseURL, token, owner string
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Load the readiness view from a running hub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := hubsdk.New(baseURL)
			client.BearerToken = token
			view := hubsdk.NewReadinessView(client)
			view.Owner = owner
			if err := view.Load(cmd.Context()); err != nil {
				return err
			}
			sum := view.Summary()
			if f, ok := view.Filtered(); ok {
				sum = f
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"summary": sum, "snapshots": view.Snapshots()})
			}
			fmt.Printf("org score %d, %d of %d processes ready, ADLI rollup %d\n", sum.OrgScore, sum.ReadyCount, sum.ProcessCount, sum.ADLIRollup)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Dimension", "Average", "Max", "Percent"})
			for _, d := range sum.DimensionAverages {
				tw.AppendRow(table.Row{d.Dimension, d.Average, d.Max, d.Percent})
			}
			tw.Render()
			printSnapshots(view.Snapshots())
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080/api", "hub API base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("NIA_HUB_TOKEN"), "bearer token")
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Audit event log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	logRoot.AddCommand(tail)
	return logRoot
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: a.Config.Server.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:      a.Config.Auth.JWTSecret,
						AllowAnonymous: a.Config.Auth.AllowAnonymous,
						Logger:         a.Logger,
					},
					RateLimiter: a.RateLimiter(),
					Metrics:     a.Metrics,
					Logger:      a.Logger,
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, a.Engine, a.Config.Webhooks, a.Logger, a.Metrics)
				srv := &http.Server{Addr: a.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving hub API",
					"addr", a.Config.Server.Addr,
					"base_path", a.Config.Server.BasePath,
					"anonymous", a.Config.Auth.AllowAnonymous)
				fmt.Printf("Serving hub API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n",
					a.Config.Server.Addr, a.Config.Server.BasePath, a.Config.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.base_path", cmd.Flags().Lookup("base-path"))
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
