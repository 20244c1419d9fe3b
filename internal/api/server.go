package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/bandi-sentinel/internal/auth"
	"github.com/david/bandi-sentinel/internal/db"
	"github.com/david/bandi-sentinel/internal/ingest"
	"github.com/david/bandi-sentinel/internal/logger"
	"github.com/david/bandi-sentinel/internal/metrics"
	"github.com/david/bandi-sentinel/internal/models"
)

// Store is the read side the API serves from.
type Store interface {
	ListAnnouncements(ctx context.Context, params db.ListParams) ([]models.StoredAnnouncement, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunOutcome, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// Scanner runs one full pass over every source.
type Scanner interface {
	Run(ctx context.Context) ingest.RunReport
	State() ingest.State
}

type Server struct {
	Store       Store
	Scanner     Scanner
	AuthService *auth.Service
	Metrics     *metrics.Metrics
	Echo        *echo.Echo

	// JobTimeout bounds a scan started from the API.
	JobTimeout time.Duration

	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string
	Status    string // running, completed, failed
	StartedAt time.Time
	EndedAt   time.Time
	Result    *ingest.RunReport
	Error     string
	done      chan struct{}
	cancel    context.CancelFunc
}

func NewServer(store Store, scanner Scanner, authService *auth.Service, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(requestLogger)

	s := &Server{
		Store:       store,
		Scanner:     scanner,
		AuthService: authService,
		Metrics:     m,
		Echo:        e,
		JobTimeout:  30 * time.Minute,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	if s.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	api := s.Echo.Group("/api/v1")
	api.GET("/announcements", s.handleListAnnouncements)
	api.GET("/runs", s.handleListRuns)
	api.GET("/stats", s.handleGetStats)
	api.POST("/auth/login", s.handleLogin)

	admin := api.Group("/admin")
	admin.Use(s.AuthService.Middleware)
	admin.POST("/scan", s.handleTriggerScan)
	admin.GET("/job/:id", s.handleJobStatus)
}

// requestLogger writes one logrus line per request.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		logger.Log.WithFields(logger.Fields{
			"method":   c.Request().Method,
			"path":     c.Path(),
			"status":   c.Response().Status,
			"duration": time.Since(start).String(),
		}).Debug("[api] request")
		return nil
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(req)
	switch err {
	case nil:
		return c.JSON(http.StatusOK, resp)
	case auth.ErrInvalidCreds:
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	case auth.ErrLoginDisabled:
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) handleListAnnouncements(c echo.Context) error {
	params := db.ListParams{
		MinScore: queryInt(c, "min_score", 0),
		Source:   strings.TrimSpace(c.QueryParam("source")),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}

	items, err := s.Store.ListAnnouncements(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"announcements": items,
		"limit":         params.Limit,
		"offset":        params.Offset,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	runs, err := s.Store.ListRuns(c.Request().Context(), queryInt(c, "limit", 20))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// handleTriggerScan starts a scan in the background. Only one runs at a time.
func (s *Server) handleTriggerScan(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A scan is already running",
			"job_id": job.ID,
		})
	}

	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.JobTimeout)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		done:      make(chan struct{}),
		cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer close(job.done)
		defer jobCancel()
		defer func() {
			if r := recover(); r != nil {
				s.finishJob(job, nil, fmt.Errorf("scan panic: %v", r))
			}
		}()

		report := s.Scanner.Run(jobCtx)
		var err error
		if ctxErr := jobCtx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.finishJob(job, &report, err)
	}()

	logger.Log.Infof("[scan-job %s] started", jobID)
	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Scan job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

func (s *Server) finishJob(job *backgroundJob, report *ingest.RunReport, err error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job.EndedAt = time.Now()
	job.Result = report
	if err != nil {
		job.Status = "failed"
		job.Error = err.Error()
		logger.Log.WithError(err).Warnf("[scan-job %s] failed", job.ID)
		return
	}
	job.Status = "completed"
	logger.Log.Infof("[scan-job %s] completed: new=%d", job.ID, report.New)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if job.Status == "running" && s.Scanner != nil {
		resp["phase"] = s.Scanner.State()
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops accepting requests and waits for a running scan to finish.
// When ctx expires first the scan is cancelled, and Shutdown still returns
// only once it has stopped, so storage can be closed afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)

	s.jobMu.Lock()
	job := s.runningJob
	s.jobMu.Unlock()
	if job == nil {
		return err
	}

	select {
	case <-job.done:
		return err
	case <-ctx.Done():
	}

	logger.Log.Warnf("[scan-job %s] still running at shutdown, cancelling", job.ID)
	job.cancel()
	<-job.done
	return errors.Join(err, fmt.Errorf("scan job %s cancelled at shutdown", job.ID))
}

func queryInt(c echo.Context, name string, def int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
