package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ftmeeet/CAS/internal/job"
	"github.com/ftmeeet/CAS/internal/metrics"
)

const writeDeadline = 30 * time.Second

// client is one SSE status subscriber.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendStatus delivers a status snapshot as an SSE "data:" message.
func (c *client) sendStatus(st job.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	if _, err := c.write("data: " + string(payload) + "\n\n"); err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendKeepalive writes an SSE comment so proxies keep the connection open.
func (c *client) sendKeepalive() error {
	_, err := c.write(":\n\n")
	return err
}

// write pushes raw bytes with a fresh deadline and flushes immediately.
// The deadline is extended per write so long-lived idle streams survive.
func (c *client) write(msg string) (int, error) {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}

	n, err := fmt.Fprint(c.w, msg)
	if err != nil {
		return n, fmt.Errorf("stream write: %w", err)
	}
	c.flusher.Flush()

	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return n, nil
}
