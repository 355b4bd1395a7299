package healthz

import (
	"encoding/json"
	"net/http"
	"time"
)

// ActivityReporter exposes when the consumer last returned from a poll.
type ActivityReporter interface {
	LastBatchTime() time.Time
}

// Checker serves liveness: unhealthy when the consumer has not polled
// within the threshold. The supervisor restarts the process on sustained
// failure.
type Checker struct {
	reporter  ActivityReporter
	threshold time.Duration
}

type Option func(*Checker)

func WithThreshold(d time.Duration) Option {
	return func(c *Checker) { c.threshold = d }
}

func NewChecker(reporter ActivityReporter, opts ...Option) *Checker {
	c := &Checker{
		reporter:  reporter,
		threshold: 45 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type response struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	SinceLastBatch string `json:"since_last_batch,omitempty"`
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	last := c.reporter.LastBatchTime()
	if last.IsZero() {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, response{Status: "unhealthy", Message: "no poll recorded yet"})
		return
	}

	elapsed := time.Since(last)
	if elapsed > c.threshold {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, response{
			Status:         "unhealthy",
			Message:        "stale: last poll exceeded threshold",
			SinceLastBatch: elapsed.Round(time.Millisecond).String(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	writeJSON(w, response{
		Status:         "ok",
		SinceLastBatch: elapsed.Round(time.Millisecond).String(),
	})
}

func writeJSON(w http.ResponseWriter, v response) {
	_ = json.NewEncoder(w).Encode(v)
}
