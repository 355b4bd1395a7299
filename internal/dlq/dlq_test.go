package dlq_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatlens/sentiment-worker/internal/dlq"
	"github.com/chatlens/sentiment-worker/internal/domain"
)

type stubSink struct {
	mu   sync.Mutex
	sent []domain.Result
	err  error
}

func (s *stubSink) Send(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, result)
	return nil
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type countingObserver struct {
	errs atomic.Int32
}

func (c *countingObserver) RecordDLQSinkError() { c.errs.Add(1) }

func failedResult(offset int64) domain.Result {
	return domain.Result{
		Record: domain.Record{
			Topic:     "social-media-topic",
			Partition: 1,
			Offset:    offset,
			Key:       []byte("u1"),
			Value:     []byte(`{"channel_id":"A"}`),
			Timestamp: time.Now(),
		},
		Outcome:  domain.OutcomeFailed,
		Stage:    domain.StagePredict,
		Err:      errors.New("endpoint rejected request"),
		Attempts: 3,
	}
}

func runHandler(t *testing.T, h *dlq.Handler, source chan domain.Result) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not stop")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestHandlerRoutesToPrimarySink(t *testing.T) {
	source := make(chan domain.Result, 4)
	primary := &stubSink{}
	fallback := &stubSink{}
	obs := &countingObserver{}
	h := dlq.NewHandler(source, primary, dlq.WithFallback(fallback), dlq.WithObserver(obs))
	stop := runHandler(t, h, source)
	defer stop()

	source <- failedResult(1)
	waitFor(t, func() bool { return primary.count() == 1 })

	if fallback.count() != 0 {
		t.Fatal("fallback must not fire when the primary sink succeeds")
	}
	if obs.errs.Load() != 0 {
		t.Fatalf("no sink errors expected, got %d", obs.errs.Load())
	}
}

func TestHandlerFallsBackWhenPrimaryFails(t *testing.T) {
	source := make(chan domain.Result, 4)
	primary := &stubSink{err: errors.New("topic unreachable")}
	fallback := &stubSink{}
	obs := &countingObserver{}
	h := dlq.NewHandler(source, primary, dlq.WithFallback(fallback), dlq.WithObserver(obs))
	stop := runHandler(t, h, source)
	defer stop()

	source <- failedResult(7)
	waitFor(t, func() bool { return fallback.count() == 1 })

	if obs.errs.Load() != 1 {
		t.Fatalf("expected 1 sink error, got %d", obs.errs.Load())
	}
	if got := fallback.sent[0].Record.Offset; got != 7 {
		t.Fatalf("fallback received wrong record: offset %d", got)
	}
}

func TestHandlerCountsFallbackFailure(t *testing.T) {
	source := make(chan domain.Result, 4)
	primary := &stubSink{err: errors.New("topic unreachable")}
	fallback := &stubSink{err: errors.New("disk full")}
	obs := &countingObserver{}
	h := dlq.NewHandler(source, primary, dlq.WithFallback(fallback), dlq.WithObserver(obs))
	stop := runHandler(t, h, source)
	defer stop()

	source <- failedResult(7)
	waitFor(t, func() bool { return obs.errs.Load() == 2 })
}

func TestFileSinkWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead", "records.ndjson")
	sink, err := dlq.NewFileSink(path)
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}

	for i := int64(1); i <= 2; i++ {
		if err := sink.Send(context.Background(), failedResult(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open fallback file: %v", err)
	}
	defer f.Close()

	var lines []dlq.FileSinkRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec dlq.FileSinkRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", len(lines)+1, err)
		}
		lines = append(lines, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	first := lines[0]
	if first.Topic != "social-media-topic" || first.Offset != 1 || first.Stage != "predict" {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.Error == "" || first.Attempts != 3 {
		t.Fatalf("failure metadata missing: %+v", first)
	}
	if first.WrittenAt.IsZero() {
		t.Fatal("written_at must be stamped")
	}
}
