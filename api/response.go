// Package api - HTTP routes, handlers and middleware for the classification service.
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/xerr"
	"github.com/nvr-ai/braintumor/zlog"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	ModelLoaded   bool    `json:"model_loaded"`
	ModelVersion  string  `json:"model_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
	Health  string `json:"health"`
}

// BatchResponse is the body of POST /batch_predict.
type BatchResponse struct {
	Predictions []*inference.Prediction `json:"predictions"`
	Total       int                     `json:"total"`
	Failed      int                     `json:"failed"`
}

// StatusResponse is the body of POST /reload_model.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Fail aborts the request with the status and client-safe message carried by err. Server
// errors are logged with the underlying cause, which never reaches the client.
func Fail(c *gin.Context, err error) {
	ce := xerr.From(err)
	if !ce.Client() {
		zlog.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", ce.Code),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(ce.Code, ErrorResponse{Detail: ce.Message})
}
