package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/VizForge/internal/adapter/fsstore"
	vfhttp "github.com/Strob0t/VizForge/internal/adapter/http"
	"github.com/Strob0t/VizForge/internal/adapter/litellm"
	vfnats "github.com/Strob0t/VizForge/internal/adapter/nats"
	vfotel "github.com/Strob0t/VizForge/internal/adapter/otel"
	"github.com/Strob0t/VizForge/internal/adapter/postgres"
	"github.com/Strob0t/VizForge/internal/adapter/ristretto"
	"github.com/Strob0t/VizForge/internal/adapter/ws"
	"github.com/Strob0t/VizForge/internal/agent"
	"github.com/Strob0t/VizForge/internal/config"
	"github.com/Strob0t/VizForge/internal/domain/task"
	"github.com/Strob0t/VizForge/internal/logger"
	"github.com/Strob0t/VizForge/internal/port/messagequeue"
	"github.com/Strob0t/VizForge/internal/port/resultstore"
	"github.com/Strob0t/VizForge/internal/resilience"
	"github.com/Strob0t/VizForge/internal/sandbox"
	"github.com/Strob0t/VizForge/internal/service"
)

const usage = `Usage: vizforge <command> [flags]

Commands:
  batch    run a JSON file of visualization tasks to completion
  serve    start the HTTP API and WebSocket progress server
  migrate  apply result-mirror schema migrations to Postgres
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownOtel, err := vfotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(shutdownCtx)
	}()

	switch command {
	case "batch":
		return runBatch(ctx, *cfg, log, args)
	case "serve":
		return runServe(ctx, *cfg, log)
	case "migrate":
		return runMigrate(ctx, *cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// deps holds the wired pipeline collaborators shared by batch and
// serve modes.
type deps struct {
	coord *service.Coordinator
	pool  *pgxpool.Pool
	cache *ristretto.Cache
}

func (d *deps) close() {
	if d.cache != nil {
		d.cache.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

func buildPipeline(ctx context.Context, cfg config.Config, log *slog.Logger, events messagequeue.Queue) (*deps, error) {
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("postgres.dsn is required (set DATABASE_URL)")
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info("postgres connected")

	schemaCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey, cfg.LiteLLM.Timeout)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	llmClient.SetMaxTokens(cfg.LiteLLM.MaxTokens)

	inspector := postgres.NewInspector(pool)
	renderer := agent.NewSchemaRenderer(inspector, schemaCache, cfg.Cache.TTL)

	evalModel := cfg.LiteLLM.EvalModel
	if evalModel == "" {
		evalModel = cfg.LiteLLM.Model
	}

	coord := service.NewCoordinator(
		agent.NewSQLAgent(llmClient, renderer, cfg.LiteLLM.Model),
		agent.NewCodeAgent(llmClient, cfg.LiteLLM.Model),
		agent.NewEvalAgent(llmClient, evalModel),
		inspector,
		sandbox.New(sandbox.Config{
			Interpreter: cfg.Sandbox.Interpreter,
			Timeout:     cfg.Sandbox.Timeout,
			WorkDir:     cfg.Sandbox.WorkDir,
		}),
		events,
		service.CoordinatorConfig{
			MaxIterations: cfg.Pipeline.MaxIterations,
			SQLAttempts:   cfg.Pipeline.SQLAttempts,
			OutputDir:     cfg.Pipeline.OutputDir,
		},
		log,
	)

	if cfg.Telemetry.Enabled {
		metrics, err := vfotel.NewMetrics()
		if err != nil {
			schemaCache.Close()
			pool.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		coord.SetMetrics(metrics)
	}

	return &deps{coord: coord, pool: pool, cache: schemaCache}, nil
}

// connectEvents connects the optional NATS sink. An empty URL disables
// it.
func connectEvents(ctx context.Context, cfg config.NATS) (messagequeue.Queue, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	queue, err := vfnats.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	return queue, nil
}

func runBatch(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	input := fs.String("input", "", "path to the JSON task file")
	output := fs.String("output", "results", "directory for result records")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("batch: -input is required")
	}

	tasks, err := service.LoadTasks(*input)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	log.Info("tasks loaded", "path", *input, "count", len(tasks))

	events, err := connectEvents(ctx, cfg.NATS)
	if err != nil {
		return err
	}
	if events != nil {
		defer func() { _ = events.Close() }()
	}

	d, err := buildPipeline(ctx, cfg, log, events)
	if err != nil {
		return err
	}
	defer d.close()

	store, err := buildResultStore(ctx, cfg, d.pool, *output)
	if err != nil {
		return err
	}

	batch := service.NewBatch(d.coord, store, service.BatchConfig{Workers: cfg.Batch.Workers}, log)
	summary, err := batch.Run(ctx, tasks)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	return nil
}

// buildResultStore returns the file store, optionally mirrored into the
// task_results Postgres table.
func buildResultStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, dir string) (resultstore.Store, error) {
	fileStore, err := fsstore.New(dir)
	if err != nil {
		return nil, err
	}
	if !cfg.Postgres.MirrorResults {
		return fileStore, nil
	}
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return mirroredStore{primary: fileStore, mirror: postgres.NewResultStore(pool)}, nil
}

// mirroredStore saves to both stores; the file store stays the source
// of truth for resumability.
type mirroredStore struct {
	primary *fsstore.Store
	mirror  resultstore.Store
}

func (m mirroredStore) Save(ctx context.Context, res task.Result) error {
	if err := m.primary.Save(ctx, res); err != nil {
		return err
	}
	if err := m.mirror.Save(ctx, res); err != nil {
		slog.Warn("result mirror save failed", "task_id", res.TaskID, "error", err)
	}
	return nil
}

func (m mirroredStore) Completed(ctx context.Context) (map[string]bool, error) {
	return m.primary.Completed(ctx)
}

func runServe(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	hub := ws.NewHub()

	natsQueue, err := connectEvents(ctx, cfg.NATS)
	if err != nil {
		return err
	}

	var events messagequeue.Queue = hub
	if natsQueue != nil {
		events = messagequeue.Fanout{natsQueue, hub}
		defer func() { _ = natsQueue.Close() }()
	}

	d, err := buildPipeline(ctx, cfg, log, events)
	if err != nil {
		return err
	}
	defer d.close()

	store, err := fsstore.New("results")
	if err != nil {
		return err
	}

	handlers := &vfhttp.Handlers{Runner: &persistingRunner{coord: d.coord, store: store}, Results: store}

	r := chi.NewRouter()
	r.Use(vfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(vfhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	// A full generate/repair loop spans several LLM round trips plus
	// sandbox executions.
	r.Use(chimw.Timeout(10 * time.Minute))

	r.Get("/health", healthHandler(cfg))
	r.Get("/ws", hub.HandleWS)
	vfhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      11 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// persistingRunner saves every synchronous API run so results are
// retrievable later via GET /api/v1/results/{id}.
type persistingRunner struct {
	coord *service.Coordinator
	store *fsstore.Store
}

func (p *persistingRunner) Run(ctx context.Context, tk task.Task) task.Result {
	res := p.coord.Run(ctx, tk)
	if err := p.store.Save(ctx, res); err != nil {
		slog.Warn("result save failed", "task_id", res.TaskID, "error", err)
	}
	return res
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required (set DATABASE_URL)")
	}
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	slog.Info("migrations applied", "version", version)
	return nil
}

// healthHandler reports service health and configured collaborators.
func healthHandler(cfg config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
		LiteLLM  string `json:"litellm"`
	}

	pg := "configured"
	if cfg.Postgres.DSN == "" {
		pg = "disabled"
	}
	nats := cfg.NATS.URL
	if nats == "" {
		nats = "disabled"
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:   "ok",
			Postgres: pg,
			NATS:     nats,
			LiteLLM:  cfg.LiteLLM.URL,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
