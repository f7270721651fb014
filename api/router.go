package api

import (
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nvr-ai/braintumor/audit"
	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/monitoring"
	"github.com/nvr-ai/braintumor/xerr"
)

// Options wires the router to the rest of the service.
type Options struct {
	AppName string
	Handle  *inference.Handle
	// Recorder is always required; MetricsEnabled only controls whether /metrics is served.
	Recorder       *monitoring.Recorder
	MetricsEnabled bool
	Collector      *monitoring.Collector
	Drift          *monitoring.DriftMonitor
	// Sink receives every successful prediction. Nil disables auditing.
	Sink           audit.Sink
	MaxUploadBytes int64
	MaxBatchSize   int
	ReloadTimeout  time.Duration
	// Assets holds index.html and static/. Nil serves no UI.
	Assets fs.FS
	// Development relaxes the secure headers middleware.
	Development bool
}

// NewRouter builds the gin engine with every route and middleware.
//
// Arguments:
//   - opts: The service dependencies and limits.
//
// Returns:
//   - *gin.Engine: The router.
//   - error: An error if the static assets cannot be opened.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 2 * time.Minute
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(Metrics(opts.Recorder))
	r.Use(CORS())
	r.Use(SecureHeaders(opts.Development))

	h := NewHandler(opts)

	r.GET("/info", h.Info)
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/drift", h.Drift)
	r.POST("/predict", h.Predict)
	r.POST("/batch_predict", h.BatchPredict)
	r.POST("/reload_model", h.ReloadModel)

	metrics := opts.Recorder.Handler()
	r.GET("/metrics", func(c *gin.Context) {
		if !opts.MetricsEnabled {
			Fail(c, xerr.ErrMetricsDisabled)
			return
		}
		metrics.ServeHTTP(c.Writer, c.Request)
	})

	if opts.Assets != nil {
		static, err := fs.Sub(opts.Assets, "static")
		if err != nil {
			return nil, err
		}
		index, err := fs.ReadFile(opts.Assets, "index.html")
		if err != nil {
			return nil, err
		}
		r.StaticFS("/static", http.FS(static))
		r.GET("/", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html; charset=utf-8", index)
		})
	} else {
		r.GET("/", h.Info)
	}

	r.NoRoute(func(c *gin.Context) {
		Fail(c, xerr.New(http.StatusNotFound, "Not found"))
	})
	return r, nil
}
