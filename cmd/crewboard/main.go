package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crewboard/internal/board"
	"crewboard/internal/config"
	"crewboard/internal/db"
	"crewboard/internal/discord"
	"crewboard/internal/domain"
	"crewboard/internal/engine"
	"crewboard/internal/engine/auth"
	"crewboard/internal/migrate"
	"crewboard/internal/provision"
	"crewboard/internal/reminder"
	"crewboard/internal/repo"
	"crewboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "crewboard",
	Short: "Crewboard community bot",
	Long: `Crewboard manages game-dev team servers: per-game channels and roles,
tasks with multi-assignee approval, reminders and a live task board.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CREWBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("db", "", "database file path")
	rootCmd.PersistentFlags().String("guild-id", "", "Discord guild id")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("guild-id", rootCmd.PersistentFlags().Lookup("guild-id"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(gameCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
}

func runCmd() *cobra.Command {
	var apiAddr string
	var sweepInterval time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot, reminder sweeper and optional API",
		RunE: func(cmd *cobra.Command, args []string) error {
			token := viper.GetString("token")
			if token == "" {
				return fmt.Errorf("CREWBOARD_TOKEN is required")
			}
			guildID := viper.GetString("guild-id")
			if guildID == "" {
				return fmt.Errorf("--guild-id or CREWBOARD_GUILD_ID is required")
			}
			conn, err := db.Open(db.Config{Path: viper.GetString("db")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}

			logger := log.New(os.Stderr, "crewboard ", log.LstdFlags)
			r := repo.Repo{DB: conn}

			eng := engine.New(conn, guildID)
			eng.Logger = logger

			handler := discord.Handler{
				Engine:   eng,
				Registry: provision.Registry{Repo: r},
				Repo:     r,
				GuildID:  guildID,
				Logger:   logger,
			}
			bot, err := discord.NewBot(token, handler)
			if err != nil {
				return err
			}
			client := discord.Client{Session: bot.Session}
			brd := board.Board{Repo: r, Messenger: client, Logger: logger}
			presenter := discord.Presenter{Client: client, Repo: r, Board: brd, Logger: logger}
			eng.Presenter = presenter
			handler.Engine = eng
			handler.Client = client
			handler.Board = brd
			bot.Handler = handler

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sweeper := &reminder.Scheduler{
				Repo:     r,
				Notifier: client,
				Interval: sweepInterval,
				Logger:   logger,
			}
			go sweeper.Run(ctx)

			if apiAddr != "" {
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					return fmt.Errorf("CREWBOARD_JWT_SECRET is required when the API is enabled")
				}
				h, err := server.New(server.Config{Engine: eng, Auth: server.AuthConfig{JWTSecret: secret}, Logger: logger})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: apiAddr, Handler: h}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				go func() {
					logger.Printf("serving API on http://%s", apiAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Printf("api server: %v", err)
					}
				}()
			}

			return bot.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "serve the operational API on this address")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", reminder.DefaultInterval, "reminder sweep interval")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API only",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Path: viper.GetString("db")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			eng := engine.New(conn, viper.GetString("guild-id"))
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("CREWBOARD_JWT_SECRET is required for bearer auth")
			}
			logger := log.New(os.Stderr, "crewboard ", log.LstdFlags)
			handler, err := server.New(server.Config{Engine: eng, BasePath: basePath, Auth: server.AuthConfig{JWTSecret: secret}, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Crewboard API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Path: viper.GetString("db")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			v, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			fmt.Printf("migrations applied: %s (schema v%d)\n", db.Path(viper.GetString("db")), v)
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect and import tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskHistoryCmd())
	task.AddCommand(taskImportCmd())
	return task
}

func taskImportCmd() *cobra.Command {
	var game, file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-create tasks for a game from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID := viper.GetString("guild-id")
			if guildID == "" {
				return fmt.Errorf("--guild-id required")
			}
			payload, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Path: viper.GetString("db")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			eng := engine.New(conn, guildID)
			created, err := eng.ImportTasks(cmd.Context(), game, payload, "cli",
				auth.Permissions{Administrator: true})
			if err != nil {
				return err
			}
			fmt.Printf("imported %d task(s) into %s\n", len(created), game)
			return nil
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "game acronym")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with task records")
	_ = cmd.MarkFlagRequired("game")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func taskListCmd() *cobra.Command {
	var game, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks by game or assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var (
					tasks []domain.Task
					err   error
				)
				switch {
				case game != "":
					tasks, err = r.ListTasksByGame(ctx, game)
				case assignee != "":
					tasks, err = r.ListTasksByAssignee(ctx, assignee)
				default:
					return fmt.Errorf("--game or --assignee required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Game", "Title", "Status", "Priority", "Deadline"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.GameAcronym, t.Title, t.Status, deref(t.Priority), deref(t.Deadline)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "game acronym")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	return cmd
}

func taskHistoryCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a task's audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetTask(ctx, id); err != nil {
					return err
				}
				entries, err := r.ListHistory(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Actor", "Action", "Old", "New"})
				for _, h := range entries {
					tw.AppendRow(table.Row{h.TS, h.ActorID, h.Action, deref(h.OldValue), deref(h.NewValue)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "task", 0, "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func gameCmd() *cobra.Command {
	game := &cobra.Command{Use: "game", Short: "Manage games"}
	game.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				games, err := r.ListGames(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(games)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Acronym", "Created"})
				for _, g := range games {
					tw.AppendRow(table.Row{g.ID, g.Name, g.Acronym, g.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	var name string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Register a game",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				g, err := provision.Registry{Repo: r}.RegisterGame(ctx, name, "")
				if err != nil {
					return err
				}
				return printJSON(g)
			})
		},
	}
	newCmd.Flags().StringVar(&name, "name", "", "game name")
	_ = newCmd.MarkFlagRequired("name")
	game.AddCommand(newCmd)
	return game
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Guild configuration"}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import guild config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID := viper.GetString("guild-id")
			if guildID == "" {
				return fmt.Errorf("--guild-id required")
			}
			parsed, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertGuildConfig(ctx, guildID, parsed, true); err != nil {
					return err
				}
				fmt.Println("config imported for guild", guildID)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&file, "file", "", "YAML config file")
	_ = importCmd.MarkFlagRequired("file")
	cfg.AddCommand(importCmd)

	cfg.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Export effective guild config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID := viper.GetString("guild-id")
			if guildID == "" {
				return fmt.Errorf("--guild-id required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				parsed, err := r.GetGuildConfig(ctx, guildID)
				if err != nil {
					return err
				}
				out, err := parsed.ToYAML()
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	})
	return cfg
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			token, err := server.MintToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Path: viper.GetString("db")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
