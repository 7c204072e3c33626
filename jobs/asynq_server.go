package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/bizgate/bizgate/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueRefreshSweep asks the worker for an immediate refresh token sweep.
func (c *Client) EnqueueRefreshSweep(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewRefreshSweepTask("manual")
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// SweepEnqueuer submits an on-demand refresh token sweep. *Client implements it.
type SweepEnqueuer interface {
	EnqueueRefreshSweep(ctx context.Context) (*asynq.TaskInfo, error)
}

// Handler exposes HTTP endpoints for job observability and manual triggers.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
	sweeper   SweepEnqueuer
	guards    []func(http.Handler) http.Handler
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// WithRefreshSweep mounts POST /refresh-sweep behind guards, which must authenticate the caller.
func (h *Handler) WithRefreshSweep(sweeper SweepEnqueuer, guards ...func(http.Handler) http.Handler) *Handler {
	h.sweeper = sweeper
	h.guards = guards
	return h
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	if h.sweeper != nil {
		r.With(h.guards...).Post("/refresh-sweep", h.enqueueSweep)
	}
}

type enqueuedTask struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
	Type  string `json:"type"`
}

func (h *Handler) enqueueSweep(w http.ResponseWriter, r *http.Request) {
	info, err := h.sweeper.EnqueueRefreshSweep(r.Context())
	if err != nil {
		h.logger.Error("enqueue refresh sweep", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := enqueuedTask{Queue: QueueDefault, Type: TaskRefreshSweep}
	if info != nil {
		out.ID = info.ID
		out.Queue = info.Queue
	}
	h.logger.Info("refresh sweep enqueued", slog.String("task_id", out.ID))
	httpx.JSON(w, http.StatusAccepted, out)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Failed  int    `json:"failed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	out := queueHealth{Queue: QueueDefault}
	if info != nil {
		out = queueHealth{Queue: info.Queue, Pending: info.Pending, Failed: info.Failed}
	}
	httpx.JSON(w, http.StatusOK, out)
}
