package api

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/audit"
	"github.com/nvr-ai/braintumor/images"
	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/models/model/preprocess"
	"github.com/nvr-ai/braintumor/monitoring"
	"github.com/nvr-ai/braintumor/xerr"
	"github.com/nvr-ai/braintumor/zlog"
)

// multipartOverhead is the allowance for boundaries and part headers on top of the
// file size ceiling.
const multipartOverhead = 1 << 20

// Handler serves the prediction endpoints.
type Handler struct {
	appName        string
	handle         *inference.Handle
	recorder       *monitoring.Recorder
	collector      *monitoring.Collector
	drift          *monitoring.DriftMonitor
	sink           audit.Sink
	maxUploadBytes int64
	maxBatchSize   int
	reloadTimeout  time.Duration
}

// NewHandler creates a handler from the router options.
func NewHandler(opts Options) *Handler {
	return &Handler{
		appName:        opts.AppName,
		handle:         opts.Handle,
		recorder:       opts.Recorder,
		collector:      opts.Collector,
		drift:          opts.Drift,
		sink:           opts.Sink,
		maxUploadBytes: opts.MaxUploadBytes,
		maxBatchSize:   opts.MaxBatchSize,
		reloadTimeout:  opts.ReloadTimeout,
	}
}

// Info describes the service.
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{
		Message: h.appName,
		Version: h.handle.Version(),
		Docs:    "/",
		Health:  "/health",
	})
}

// Health reports readiness. It answers 503 until a model is loaded so orchestrators can
// tell a running process from a serving one.
func (h *Handler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:        "healthy",
		ModelLoaded:   h.handle.Ready(),
		ModelVersion:  h.handle.Version(),
		UptimeSeconds: h.handle.Uptime().Seconds(),
	}
	status := http.StatusOK
	if !resp.ModelLoaded {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Stats returns the rolling prediction statistics.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Summary())
}

// Drift compares recent predictions with the configured class distribution.
func (h *Handler) Drift(c *gin.Context) {
	c.JSON(http.StatusOK, h.drift.Check())
}

// Predict classifies the image uploaded in the "file" form field.
//
// Checks run in order: model ready, upload size, field present, declared content type,
// sniffed content type. Nothing is decoded until all of them pass.
func (h *Handler) Predict(c *gin.Context) {
	if !h.handle.Ready() {
		h.reject(c, monitoring.ReasonModelNotLoaded, xerr.ErrModelNotLoaded)
		return
	}

	form, err := h.readForm(c)
	if err != nil {
		h.reject(c, monitoring.ReasonInvalidUpload, err)
		return
	}
	defer form.RemoveAll()

	files := form.File["file"]
	if len(files) == 0 {
		h.reject(c, monitoring.ReasonInvalidUpload, xerr.ErrMissingFile)
		return
	}
	data, err := h.readImage(files[0])
	if err != nil {
		h.reject(c, monitoring.ReasonInvalidUpload, err)
		return
	}

	pred, err := h.handle.Predict(c.Request.Context(), data)
	if err != nil {
		reason, ce := classify(err)
		h.reject(c, reason, errors.Wrap(ce, err.Error()))
		return
	}

	h.observe(c.Request.Context(), pred)
	c.JSON(http.StatusOK, pred)
}

// BatchPredict classifies every image in the "files" form field. Files that fail
// validation or inference are skipped and counted in the response.
func (h *Handler) BatchPredict(c *gin.Context) {
	if !h.handle.Ready() {
		h.reject(c, monitoring.ReasonModelNotLoaded, xerr.ErrModelNotLoaded)
		return
	}

	form, err := h.readFormSized(c, int64(h.maxBatchSize)*h.maxUploadBytes+multipartOverhead)
	if err != nil {
		h.reject(c, monitoring.ReasonInvalidUpload, err)
		return
	}
	defer form.RemoveAll()

	files := form.File["files"]
	if len(files) == 0 {
		h.reject(c, monitoring.ReasonInvalidUpload, xerr.New(http.StatusBadRequest, "No files provided. Use 'files' as the form field name"))
		return
	}
	if len(files) > h.maxBatchSize {
		h.reject(c, monitoring.ReasonInvalidUpload, xerr.TooManyFiles(h.maxBatchSize))
		return
	}

	inputs := make([][]byte, 0, len(files))
	failed := 0
	for _, fh := range files {
		data, err := h.readImage(fh)
		if err != nil {
			failed++
			h.recorder.ObserveError(monitoring.ReasonInvalidUpload)
			h.collector.RecordError()
			zlog.Warn("batch item rejected", zap.String("filename", fh.Filename), zap.Error(err))
			continue
		}
		inputs = append(inputs, data)
	}

	var preds []*inference.Prediction
	if len(inputs) > 0 {
		results, errs, err := h.handle.PredictBatch(c.Request.Context(), inputs)
		if err != nil {
			reason, ce := classify(err)
			h.reject(c, reason, errors.Wrap(ce, err.Error()))
			return
		}
		for i, pred := range results {
			if errs[i] != nil {
				failed++
				reason, _ := classify(errs[i])
				h.recorder.ObserveError(reason)
				h.collector.RecordError()
				zlog.Warn("batch item failed", zap.Int("index", i), zap.Error(errs[i]))
				continue
			}
			h.observe(c.Request.Context(), pred)
			preds = append(preds, pred)
		}
	}

	if preds == nil {
		preds = []*inference.Prediction{}
	}
	c.JSON(http.StatusOK, BatchResponse{Predictions: preds, Total: len(preds), Failed: failed})
}

// ReloadModel loads the model again from its configured path. The current model keeps
// serving if the reload fails.
func (h *Handler) ReloadModel(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.reloadTimeout)
	defer cancel()

	if err := h.handle.Reload(ctx); err != nil {
		Fail(c, errors.Wrap(xerr.ErrReloadFailure, err.Error()))
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "success", Message: "Model reloaded successfully"})
}

func (h *Handler) readForm(c *gin.Context) (*multipart.Form, error) {
	return h.readFormSized(c, h.maxUploadBytes+multipartOverhead)
}

// readFormSized parses the multipart body, refusing to read more than limit bytes.
func (h *Handler) readFormSized(c *gin.Context, limit int64) (*multipart.Form, error) {
	if c.Request.ContentLength > limit {
		return nil, xerr.FileTooLarge(h.maxUploadBytes)
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	reader, err := c.Request.MultipartReader()
	if err != nil {
		return nil, xerr.ErrMissingFile
	}
	form, err := reader.ReadForm(32 << 20)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, xerr.FileTooLarge(h.maxUploadBytes)
		}
		return nil, errors.Wrap(xerr.New(http.StatusBadRequest, "Malformed multipart body"), err.Error())
	}
	return form, nil
}

// readImage applies the per-file checks and returns the file content.
func (h *Handler) readImage(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.maxUploadBytes {
		return nil, xerr.FileTooLarge(h.maxUploadBytes)
	}
	if !images.IsImageMIME(fh.Header.Get("Content-Type")) {
		return nil, xerr.ErrInvalidContentType
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(xerr.ErrInvalidImage, err.Error())
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return nil, errors.Wrap(xerr.ErrInvalidImage, err.Error())
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, xerr.FileTooLarge(h.maxUploadBytes)
	}
	if sniffed := images.Sniff(data); !images.IsImageMIME(sniffed) {
		return nil, errors.Wrapf(xerr.ErrInvalidContentType, "content sniffed as %s", sniffed)
	}
	return data, nil
}

// observe records a successful prediction everywhere it is tracked.
func (h *Handler) observe(ctx context.Context, pred *inference.Prediction) {
	h.recorder.ObservePrediction(pred.PredictedClass, pred.Confidence,
		time.Duration(pred.ProcessingTimeMs*float64(time.Millisecond)))
	h.collector.RecordPrediction(pred.PredictedClass, pred.Confidence, pred.ProcessingTimeMs)
	h.drift.Update(pred.PredictedClass)

	if h.sink == nil {
		return
	}
	if err := h.sink.Record(ctx, audit.FromPrediction(pred, h.handle.Version())); err != nil {
		zlog.Warn("audit record failed", zap.String("prediction_id", pred.PredictionID), zap.Error(err))
	}
}

// reject counts the failure and answers with err.
func (h *Handler) reject(c *gin.Context, reason string, err error) {
	h.recorder.ObserveError(reason)
	h.collector.RecordError()
	Fail(c, err)
}

// classify maps an inference error onto a metric reason and a client-facing error.
func classify(err error) (string, *xerr.CodeError) {
	switch {
	case errors.Is(err, inference.ErrModelNotLoaded):
		return monitoring.ReasonModelNotLoaded, xerr.ErrModelNotLoaded
	case errors.Is(err, preprocess.ErrImageTooLarge):
		return monitoring.ReasonInvalidUpload, xerr.ErrImageTooLarge
	case errors.Is(err, preprocess.ErrInvalidImage):
		return monitoring.ReasonInvalidUpload, xerr.ErrInvalidImage
	default:
		return monitoring.ReasonInference, xerr.ErrInferenceFailure
	}
}
