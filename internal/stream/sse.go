// Package stream implements Server-Sent Events (SSE) streaming of
// analysis job status. Clients connect via GET /api/v1/analysis/events
// and receive a status snapshot whenever the job transitions or makes
// progress, so frontends do not have to poll the status endpoint.
//
// SSE message format:
//
//	data: {"state":"Running","is_running":true,"progress":42,"message":"screening candidate pairs"}\n\n
//
// The current snapshot is always sent first on connect. Keep-alive
// comments (:\n\n) are sent every KeepaliveInterval to prevent proxy
// timeouts.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ftmeeet/CAS/internal/httputil"
	"github.com/ftmeeet/CAS/internal/job"
)

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	PollInterval       time.Duration // Status snapshot poll interval (default: 250ms).
}

// Handler manages SSE status connections.
type Handler struct {
	controller *job.Controller
	config     Config
	limiter    *streamLimiter
	trustProxy bool
	logger     *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(controller *job.Controller, config Config, trustProxy bool, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &Handler{
		controller: controller,
		config:     config,
		limiter:    newStreamLimiter(config.MaxConcurrentPerIP),
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// HandleStatus serves the SSE status stream.
// GET /api/v1/analysis/events
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming unsupported"})
		return
	}

	ip := httputil.ClientIP(r, h.trustProxy)
	if !h.limiter.acquire(ip) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}
	defer h.limiter.release(ip)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		ip:      ip,
		logger:  h.logger,
	}

	h.logger.Info("status stream connected", "remote_ip", ip, "active", h.limiter.count(ip))
	defer func() {
		h.logger.Info("status stream disconnected",
			"remote_ip", ip,
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	last := h.controller.Status()
	if err := c.sendStatus(last); err != nil {
		return
	}

	poll := time.NewTicker(h.config.PollInterval)
	defer poll.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-poll.C:
			st := h.controller.Status()
			if st == last {
				continue
			}
			last = st
			if err := c.sendStatus(st); err != nil {
				return
			}
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				return
			}
		}
	}
}
