package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/delineate/dashboard/dashboard/internal/dashboard"
	"github.com/delineate/dashboard/dashboard/internal/jobs"
	"github.com/delineate/dashboard/dashboard/internal/upload"
	"github.com/delineate/dashboard/pkg/types"
)

// Options configures the router.
type Options struct {
	// CORSOrigins lists browser origins allowed to call the API. Empty
	// allows any origin.
	CORSOrigins []string

	// Links is served verbatim by GET /api/v1/links.
	Links map[string]string

	// Stream, when set, is mounted at GET /ws/stream.
	Stream http.Handler

	// Reporting installs the Sentry middleware. Requires reporting.Init.
	Reporting bool
}

// Handler serves /api/v1/* from a mounted dashboard.
type Handler struct {
	dash  *dashboard.Dashboard
	links map[string]string
}

// New builds the gin router for d.
func New(d *dashboard.Dashboard, opts Options) http.Handler {
	h := &Handler{dash: d, links: opts.Links}
	if h.links == nil {
		h.links = map[string]string{}
	}

	r := gin.New()
	r.Use(requestLogger(), gin.CustomRecovery(recovered))
	// Sentry sits inside recovery so it sees the panic first and re-raises it.
	if opts.Reporting {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	v1 := r.Group("/api/v1")
	v1.GET("/state", h.state)
	v1.GET("/health", h.health)
	v1.GET("/metrics", h.metrics)
	v1.GET("/jobs", h.listJobs)
	v1.POST("/jobs/check", h.checkJob)
	v1.POST("/jobs/start", h.startJob)
	v1.GET("/errors", h.listErrors)
	v1.POST("/errors/remote", h.triggerRemote)
	v1.POST("/errors/local", h.triggerLocal)
	v1.POST("/upload", h.upload)
	v1.GET("/links", h.listLinks)

	if opts.Stream != nil {
		r.GET("/ws/stream", gin.WrapH(opts.Stream))
	}

	r.NoRoute(func(c *gin.Context) { jsonErr(c, http.StatusNotFound, "not found") })
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) { jsonErr(c, http.StatusMethodNotAllowed, "method not allowed") })
	return r
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.dash.Snapshot())
}

// health returns the latest poll result. Unhealthy is still a 200: the
// endpoint reports the remote service's state, not the dashboard's.
func (h *Handler) health(c *gin.Context) {
	res := h.dash.Health()
	if res == nil {
		jsonErr(c, http.StatusServiceUnavailable, "health not polled yet")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) metrics(c *gin.Context) {
	snap := h.dash.Snapshot()
	if snap.Metrics == nil {
		jsonErr(c, http.StatusServiceUnavailable, "metrics not fetched yet")
		return
	}
	c.JSON(http.StatusOK, snap.Metrics)
}

func (h *Handler) listJobs(c *gin.Context) {
	t := h.dash.Jobs()
	c.JSON(http.StatusOK, JobsResponse{Jobs: t.List(), Busy: t.Busy()})
}

func (h *Handler) checkJob(c *gin.Context) {
	h.runJob(c, h.dash.Jobs().CheckAvailability)
}

func (h *Handler) startJob(c *gin.Context) {
	h.runJob(c, h.dash.Jobs().StartDownload)
}

func (h *Handler) runJob(c *gin.Context, action func(ctx context.Context, id int64) (types.Job, error)) {
	var req fileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonErr(c, http.StatusBadRequest, jobs.ErrInvalidFileID.Error())
		return
	}
	id, err := jobs.ParseFileID(req.FileID.String())
	if err != nil {
		jsonErr(c, http.StatusBadRequest, err.Error())
		return
	}
	job, err := action(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrInvalidFileID) {
			status = http.StatusBadRequest
		}
		jsonErr(c, status, err.Error())
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) listErrors(c *gin.Context) {
	r := h.dash.Errors()
	c.JSON(http.StatusOK, ErrorsResponse{Errors: r.List(), Busy: r.Busy()})
}

func (h *Handler) triggerRemote(c *gin.Context) {
	c.JSON(http.StatusOK, h.dash.Errors().TriggerRemote(c.Request.Context()))
}

// triggerLocal never returns normally; recovery answers 500.
func (h *Handler) triggerLocal(c *gin.Context) {
	h.dash.Errors().TriggerLocal()
}

func (h *Handler) upload(c *gin.Context) {
	fh, err := c.FormFile(upload.FormField)
	if err != nil {
		jsonErr(c, http.StatusBadRequest, upload.MsgNoFile)
		return
	}
	f, err := fh.Open()
	if err != nil {
		jsonErr(c, http.StatusBadRequest, fmt.Sprintf("open upload: %v", err))
		return
	}
	defer f.Close()

	res, err := h.dash.Uploads().Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		var ue *upload.Error
		if errors.As(err, &ue) {
			status := http.StatusBadGateway
			if ue.Message == upload.MsgNoFile {
				status = http.StatusBadRequest
			}
			jsonErr(c, status, ue.Message)
			return
		}
		jsonErr(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listLinks(c *gin.Context) {
	c.JSON(http.StatusOK, h.links)
}

// --- helpers ----------------------------------------------------------------

func jsonErr(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}

func recovered(c *gin.Context, v any) {
	slog.Error("api: handler panicked", "path", c.Request.URL.Path, "panic", v)
	msg := "internal error"
	if err, ok := v.(error); ok {
		msg = err.Error()
	}
	jsonErr(c, http.StatusInternalServerError, msg)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("api: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "traceparent", "tracestate", "baggage"}
	return cfg
}
