package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"ai_content_pipeline/exchangelog"
	"ai_content_pipeline/metrics"
	"ai_content_pipeline/pipeline"
	"ai_content_pipeline/publisher"
)

// Server exposes the pipeline controller over a JSON API.
type Server struct {
	Echo *echo.Echo

	ctrl      *pipeline.Controller
	pub       *publisher.Publisher
	exchanges *exchangelog.Store
	metrics   *metrics.Collector
	client    *http.Client
	log       logrus.FieldLogger

	// runs outlive the request that started them
	baseCtx context.Context
	stop    context.CancelFunc
	runs    sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithExchangeLog enables GET /api/exchanges.
func WithExchangeLog(s *exchangelog.Store) Option {
	return func(srv *Server) { srv.exchanges = s }
}

// WithMetrics enables request metrics and GET /metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.log = l
		}
	}
}

// WithHTTPClient sets the client used to fetch remote images.
func WithHTTPClient(c *http.Client) Option {
	return func(srv *Server) {
		if c != nil {
			srv.client = c
		}
	}
}

func New(ctrl *pipeline.Controller, pub *publisher.Publisher, opts ...Option) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("pipeline controller required")
	}
	if pub == nil {
		return nil, errors.New("publisher required")
	}
	s := &Server{
		Echo:   echo.New(),
		ctrl:   ctrl,
		pub:    pub,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.stop = context.WithCancel(context.Background())
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	e := s.Echo
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.Round(time.Millisecond),
			}).Debug("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
}

func (s *Server) setupRoutes() {
	e := s.Echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := e.Group("/api")
	api.GET("/state", s.handleState)
	api.GET("/events", s.handleEvents)
	api.POST("/start", s.handleStart)
	api.POST("/select", s.handleSelect)
	api.POST("/finalize", s.handleFinalize)
	api.POST("/reset", s.handleReset)
	api.GET("/markdown", s.handleMarkdown)
	api.GET("/preview", s.handlePreview)
	api.GET("/posts/:id/image.png", s.handlePostImage)
	api.GET("/posts/:id/sections/:index/image.png", s.handleSectionImage)
	api.POST("/export", s.handleExport)
	api.GET("/exchanges", s.handleExchanges)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start listens on addr until ctx is cancelled, then shuts down and waits for
// in-flight runs to observe cancellation.
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}
	// ends event streams so Shutdown does not wait on them
	s.stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.Echo.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels in-flight runs and waits for them to return.
func (s *Server) Close() {
	s.stop()
	s.runs.Wait()
}

// track waits for a background run so Close can drain it.
func (s *Server) track(run string, done <-chan error) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if err := <-done; err != nil {
			s.log.WithError(err).WithField("run", run).Debug("background run ended with error")
		}
	}()
}

// --- Handlers ---

type startReq struct {
	Context string `json:"context"`
}

type selectReq struct {
	PostID string `json:"post_id"`
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.State())
}

// handleEvents streams the state as server-sent events, starting with the current one.
func (s *Server) handleEvents(c echo.Context) error {
	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(st pipeline.State) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return err
		}
		w.Flush()
		return nil
	}
	if err := send(s.ctrl.State()); err != nil {
		return nil
	}
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-s.baseCtx.Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if err := send(st); err != nil {
				return nil
			}
		}
	}
}

func (s *Server) handleStart(c echo.Context) error {
	var req startReq
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	done, err := s.ctrl.StartAsync(s.baseCtx, req.Context)
	if errors.Is(err, pipeline.ErrBusy) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	s.track("start", done)
	return c.JSON(http.StatusAccepted, s.ctrl.State())
}

func (s *Server) handleSelect(c echo.Context) error {
	var req selectReq
	if err := c.Bind(&req); err != nil || req.PostID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "post_id is required")
	}
	st := s.ctrl.State()
	if st.Step != pipeline.StepReview {
		return echo.NewHTTPError(http.StatusConflict, fmt.Sprintf("posts can only be selected in review, not %s", st.Step))
	}
	if _, ok := st.Post(req.PostID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown post_id")
	}
	if !s.ctrl.Select(req.PostID) {
		return echo.NewHTTPError(http.StatusConflict, "post can no longer be selected")
	}
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleFinalize(c echo.Context) error {
	st := s.ctrl.State()
	if _, ok := st.Selected(); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, pipeline.ErrNoSelection.Error())
	}
	if st.Step == pipeline.StepPublished {
		return echo.NewHTTPError(http.StatusConflict, "selected post is already finalized")
	}
	done, err := s.ctrl.FinalizeAsync(s.baseCtx)
	if errors.Is(err, pipeline.ErrBusy) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	s.track("finalize", done)
	return c.JSON(http.StatusAccepted, s.ctrl.State())
}

func (s *Server) handleReset(c echo.Context) error {
	s.ctrl.Reset()
	return c.JSON(http.StatusOK, s.ctrl.State())
}

func (s *Server) handleMarkdown(c echo.Context) error {
	md, err := s.ctrl.Markdown()
	if errors.Is(err, pipeline.ErrNoSelection) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (s *Server) handlePreview(c echo.Context) error {
	p, ok := s.ctrl.State().Selected()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, pipeline.ErrNoSelection.Error())
	}
	page, err := publisher.RenderPage(p.Title, pipeline.Markdown(p))
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, page)
}

// handlePostImage downloads the post's cover as <name>.png. name defaults to
// the slug of the post title.
func (s *Server) handlePostImage(c echo.Context) error {
	p, ok := s.ctrl.State().Post(c.Param("id"))
	if !ok || p.Image == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no image for post")
	}
	return s.sendImage(c, p.Image, p.Title)
}

// handleSectionImage downloads the image of one expanded section.
func (s *Server) handleSectionImage(c echo.Context) error {
	p, ok := s.ctrl.State().Post(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown post")
	}
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 || i >= len(p.Expanded) || p.Expanded[i].Image == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no image for section")
	}
	return s.sendImage(c, p.Expanded[i].Image, p.Title+" "+p.Expanded[i].Title)
}

func (s *Server) sendImage(c echo.Context, ref, title string) error {
	name := publisher.Slugify(strings.TrimSuffix(c.QueryParam("name"), ".png"))
	if name == "" {
		name = publisher.Slugify(title)
	}
	if name == "" {
		name = "image"
	}
	data, err := publisher.ExportImage(c.Request().Context(), s.client, ref)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	h := c.Response().Header()
	h.Set(echo.HeaderCacheControl, "private, max-age=300")
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name+".png"))
	return c.Blob(http.StatusOK, "image/png", data)
}

func (s *Server) handleExport(c echo.Context) error {
	p, ok := s.ctrl.State().Selected()
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, pipeline.ErrNoSelection.Error())
	}
	pkg, err := s.pub.Export(c.Request().Context(), publisher.Article{
		ID:       p.ID,
		Title:    p.Title,
		Markdown: pipeline.Markdown(p),
	})
	if err != nil {
		s.log.WithError(err).WithField("post_id", p.ID).Error("export failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, pkg)
}

func (s *Server) handleExchanges(c echo.Context) error {
	if s.exchanges == nil {
		return echo.NewHTTPError(http.StatusNotFound, "exchange log is disabled")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = n
	}
	rows, err := s.exchanges.Recent(c.Request().Context(), c.QueryParam("op"), limit)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []exchangelog.Exchange{}
	}
	return c.JSON(http.StatusOK, rows)
}
