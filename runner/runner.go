// Package runner serves a view synthesis backend over HTTP so that the
// driver and the model can live in different processes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pdevine/tensor"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/turntable/api"
	"github.com/ollama/turntable/envconfig"
	"github.com/ollama/turntable/logutil"
	"github.com/ollama/turntable/oracle"
	"github.com/ollama/turntable/schedule"
	"github.com/ollama/turntable/view"
)

// Server holds the backend and handles requests.
type Server struct {
	backend oracle.Oracle
	name    string

	// sem bounds concurrent calls into the backend
	sem *semaphore.Weighted
}

func NewServer(backend oracle.Oracle, parallel int) *Server {
	name := "custom"
	if n, ok := backend.(interface{ Name() string }); ok {
		name = n.Name()
	}

	return &Server{
		backend: backend,
		name:    name,
		sem:     semaphore.NewWeighted(int64(max(parallel, 1))),
	}
}

func (s *Server) Handler() http.Handler {
	config := cors.DefaultConfig()
	config.AllowWildcard = true
	config.AllowBrowserExtensions = true
	config.AllowHeaders = append(config.AllowHeaders, "Authorization", "Accept", "User-Agent", "X-Requested-With")
	config.AllowOrigins = envconfig.AllowedOrigins()
	if slices.Contains(config.AllowOrigins, "*") {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
	}

	r := gin.New()
	r.Use(gin.Recovery(), cors.New(config))

	r.GET("/health", s.HealthHandler)
	r.HEAD("/health", s.HealthHandler)
	r.POST("/synthesize", s.SynthesizeHandler)
	r.POST("/release", s.ReleaseHandler)
	return r
}

// Serve accepts connections on ln until ctx is canceled.
func Serve(ctx context.Context, ln net.Listener, s *Server) error {
	srv := &http.Server{Handler: s.Handler()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("shutting down runner")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("runner listening", "addr", ln.Addr(), "backend", s.name)
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	return nil
}

func (s *Server) HealthHandler(c *gin.Context) {
	s.respond(c, http.StatusOK, api.HealthResponse{Status: "ok", Backend: s.name})
}

func (s *Server) SynthesizeHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	} else if len(body) == 0 {
		s.abort(c, http.StatusBadRequest, errors.New("missing request body"))
		return
	}

	var req api.SynthesizeRequest
	if err := api.Unmarshal(c.ContentType(), body, &req); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	opts := api.DefaultOptions()
	if err := opts.FromMap(req.Options); err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	oreq, err := decodeRequest(&req, opts)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err)
		return
	}

	if err := s.sem.Acquire(c.Request.Context(), 1); err != nil {
		slog.Info("aborting synthesize request due to client closing the connection")
		return
	}
	defer s.sem.Release(1)

	slog.Debug("synthesize", "anchors", len(oreq.Anchors), "precision", opts.Precision, "steps", opts.Steps)
	logutil.Trace("synthesize", "weights", oreq.Weights, "scale", opts.Scale, "eta", opts.Eta, "seed", opts.Seed)

	start := time.Now()
	img, err := s.backend.Synthesize(c.Request.Context(), oreq)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Info("synthesize canceled")
		return
	case errors.Is(err, oracle.ErrShape), errors.Is(err, view.ErrShape):
		s.abort(c, http.StatusBadRequest, err)
		return
	case err != nil:
		slog.Error("synthesize failed", "error", err)
		s.abort(c, http.StatusInternalServerError, err)
		return
	}

	data, err := view.Pixels(img)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}

	h, w, err := view.Size(img)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}

	out, err := api.NewTensor([]int{view.Channels, h, w}, data, opts.Precision.DType())
	if err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}

	s.respond(c, http.StatusOK, api.SynthesizeResponse{Image: out, Duration: time.Since(start)})
}

func (s *Server) ReleaseHandler(c *gin.Context) {
	r, ok := s.backend.(oracle.Releaser)
	if !ok {
		s.respond(c, http.StatusOK, api.ReleaseResponse{})
		return
	}

	if err := r.Release(c.Request.Context()); err != nil {
		s.abort(c, http.StatusInternalServerError, err)
		return
	}

	s.respond(c, http.StatusOK, api.ReleaseResponse{Released: true})
}

// respond encodes v in the media type the request was sent with.
func (s *Server) respond(c *gin.Context, status int, v any) {
	mediaType := api.MediaType(c.ContentType())
	data, err := api.Marshal(mediaType, v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(status, mediaType, data)
}

func (s *Server) abort(c *gin.Context, status int, err error) {
	s.respond(c, status, api.ErrorResponse{Message: err.Error()})
	c.Abort()
}

func decodeRequest(req *api.SynthesizeRequest, opts api.Options) (*oracle.Request, error) {
	if len(req.Anchors) == 0 {
		return nil, fmt.Errorf("%w: no anchors", oracle.ErrShape)
	}

	oreq := oracle.Request{
		Anchors:   make([]*tensor.Dense, len(req.Anchors)),
		Rotations: make([]schedule.Rotation, len(req.Rotations)),
		Weights:   make([]float64, len(req.Weights)),
		Options:   opts,
	}

	for i, a := range req.Anchors {
		data, err := a.Float32s()
		if err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}

		oreq.Anchors[i], err = view.Squeeze(tensor.New(tensor.WithShape(a.Shape...), tensor.WithBacking(data)))
		if err != nil {
			return nil, fmt.Errorf("anchor %d: %w", i, err)
		}
	}

	for i, r := range req.Rotations {
		oreq.Rotations[i] = r
	}

	for i, w := range req.Weights {
		oreq.Weights[i] = float64(w)
	}

	if _, _, err := oreq.Validate(); err != nil {
		return nil, err
	}
	return &oreq, nil
}
