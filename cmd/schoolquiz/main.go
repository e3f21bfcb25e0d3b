package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/olegsv/schoolquiz/internal/grading"
	"github.com/olegsv/schoolquiz/internal/handler"
	appI18n "github.com/olegsv/schoolquiz/internal/i18n"
	"github.com/olegsv/schoolquiz/internal/importer"
	"github.com/olegsv/schoolquiz/internal/model"
	"github.com/olegsv/schoolquiz/internal/store"
	"github.com/olegsv/schoolquiz/internal/testfile"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schoolquiz",
		Short: "School quiz server with file-based tests and LLM grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `schoolquiz --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "schoolquiz.db", "SQLite database path")
	f.StringP("tests-dir", "t", "tests", "Root directory with *.txt test files")
	f.StringP("lang", "l", "ru", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("grading-enabled", false, "Enable LLM grading of open answers")
	f.String("grading-api-key", "", "API key for the grading LLM")
	f.String("grading-url", "", "OpenAI-compatible API base URL for grading")
	f.String("grading-model", "gpt-4o-mini", "LLM model name for grading")
	f.Int("grading-timeout", 60, "Grading request timeout in seconds")
	f.String("admin-password", "", "Initial admin password (or set SCHOOLQUIZ_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import test files from a bulk-paste blob",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.StringP("tests-dir", "t", "tests", "Root directory with *.txt test files")
	f.Bool("dry-run", false, "Parse the blob and report without writing files")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export attempts and topics as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "schoolquiz.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SCHOOLQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("schoolquiz")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/schoolquiz")
	v.AddConfigPath("/etc/schoolquiz")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// Open the tests directory and sync topics from its files.
	files, err := testfile.NewService(v.GetString("tests-dir"))
	if err != nil {
		return fmt.Errorf("open tests dir: %w", err)
	}
	if err := syncTopics(db, files); err != nil {
		return fmt.Errorf("sync topics: %w", err)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	grader := grading.New(grading.Config{
		Enabled:        v.GetBool("grading-enabled"),
		APIKey:         v.GetString("grading-api-key"),
		BaseURL:        v.GetString("grading-url"),
		Model:          v.GetString("grading-model"),
		TimeoutSeconds: v.GetInt("grading-timeout"),
	})
	if grader.Enabled() {
		slog.Info("LLM grading enabled", "model", v.GetString("grading-model"), "url", v.GetString("grading-url"))
	} else {
		slog.Info("LLM grading disabled, open answers stay ungraded")
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		TestsDir:      v.GetString("tests-dir"),
		Lang:          lang,
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	}

	// ctx is cancelled on SIGINT/SIGTERM; it also parents background
	// grading calls so shutdown stops in-flight oracle requests.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handler.New(ctx, db, files, importer.NewService(files.Root()), grader, cfg)

	// Expired auth sessions pile up in the db; sweep them hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.CleanupExpiredSessions(); err != nil {
					slog.Warn("session cleanup failed", "error", err)
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"tests_dir", cfg.TestsDir,
			"lang", lang,
			"base_path", basePath,
			"grading", grader.Enabled(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Read the blob from the file argument, or stdin when absent.
	var data []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read import blob: %w", err)
	}

	res := importer.Parse(string(data))
	for _, e := range res.Errors {
		fmt.Fprintln(os.Stderr, "parse error:", e)
	}
	if v.GetBool("dry-run") {
		for _, u := range res.Units {
			fmt.Println(u.Path)
		}
		fmt.Printf("%d files parsed, %d errors\n", len(res.Units), len(res.Errors))
		return nil
	}

	files, err := testfile.NewService(v.GetString("tests-dir"))
	if err != nil {
		return fmt.Errorf("open tests dir: %w", err)
	}
	created, failed := importer.NewService(files.Root()).WriteAll(cmd.Context(), res.Units)
	for _, p := range created {
		fmt.Println("created:", p)
	}
	for _, p := range failed {
		fmt.Fprintln(os.Stderr, "failed:", p)
	}
	fmt.Printf("%d files created, %d failed, %d parse errors\n", len(created), len(failed), len(res.Errors))

	if len(failed) > 0 || len(res.Errors) > 0 {
		return fmt.Errorf("import finished with errors")
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func syncTopics(db *store.Store, files *testfile.Service) error {
	found, err := files.Scan()
	if err != nil {
		return err
	}
	for _, f := range found {
		if err := db.UpsertTopic(f.Title, f.FileName, f.Mode); err != nil {
			return fmt.Errorf("upsert topic %s: %w", f.FileName, err)
		}
	}
	if err := db.RecordSync(time.Now()); err != nil {
		return err
	}
	slog.Info("synced topics from files", "count", len(found))
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or SCHOOLQUIZ_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
