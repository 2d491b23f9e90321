// Package http exposes the registry over the v1 HTTP API. Invoices, labels
// and query results travel as TOML; parcel bodies travel as raw bytes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BurntSushi/toml"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/bindlekit/bindle/pkg/bindle"
	"github.com/bindlekit/bindle/pkg/core"
	"github.com/bindlekit/bindle/pkg/invoice"
)

// ErrorResponse is the TOML error body returned for failed requests.
type ErrorResponse struct {
	Error string `toml:"error"`
}

// Frontend serves the v1 bindle API.
type Frontend struct {
	registry bindle.Registry
	codec    invoice.Codec
	logger   *zap.Logger
}

func New(registry bindle.Registry, limits core.LimitsConfig, logger *zap.Logger) *Frontend {
	return &Frontend{
		registry: registry,
		codec:    invoice.NewCodec(limits),
		logger:   logger,
	}
}

// Handler returns the route table for the v1 API.
func (f *Frontend) Handler() http.Handler {
	router := httprouter.New()

	router.POST("/v1/_i", f.wrap(f.handleCreateInvoice))
	router.GET("/v1/_i/*bindle", f.wrap(f.handleGetInvoice))
	router.DELETE("/v1/_i/*bindle", f.wrap(f.handleYankInvoice))

	router.POST("/v1/_p/:sha", f.wrap(f.handlePutParcel))
	router.GET("/v1/_p/:sha", f.wrap(f.handleGetParcel))
	router.HEAD("/v1/_p/:sha", f.wrap(f.handleGetParcel))

	router.GET("/v1/_q", f.wrap(f.handleQuery))

	return router
}

type handlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, p httprouter.Params) error

func (f *Frontend) wrap(h handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := h(r.Context(), w, r, p); err != nil {
			f.writeError(w, r, err)
		}
	}
}

func (f *Frontend) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, core.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, core.ErrIntegrity):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrClosed):
		status = http.StatusServiceUnavailable
		msg = "registry unavailable"
	default:
		// Storage and unexpected failures stay generic; backend detail goes
		// to the log, not the client.
		msg = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		f.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		f.logger.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	writeTOML(w, status, ErrorResponse{Error: msg})
}

func writeTOML(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/toml")
	w.WriteHeader(status)
	// The status line is already on the wire; an encode failure here can
	// only mean a broken connection.
	_ = toml.NewEncoder(w).Encode(v)
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrInvalid, fmt.Sprintf(format, args...))
}
