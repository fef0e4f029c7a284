package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/sensor-bridge/internal/metrics"
	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type mockIngester struct {
	mu       sync.Mutex
	readings []*model.Reading
	err      error
	panicMsg string

	delay       time.Duration
	inFlight    int32
	maxInFlight int32
}

func (m *mockIngester) Ingest(_ context.Context, _ string, r *model.Reading) error {
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&m.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&m.maxInFlight, cur, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}

	m.mu.Lock()
	m.readings = append(m.readings, r)
	m.mu.Unlock()
	return m.err
}

func newTestListener(ing Ingester) *Listener {
	return NewListener(context.Background(), ing, 0, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
}

func TestHandleMessageDecodesAndIngests(t *testing.T) {
	ing := &mockIngester{}
	l := newTestListener(ing)

	l.HandleMessage(nil, &fakeMessage{topic: "sensors", payload: []byte(`{"temp":21.5}`)})

	if len(ing.readings) != 1 {
		t.Fatalf("expected one ingest run, got %d", len(ing.readings))
	}
	if v, _ := ing.readings[0].Get("temp"); v == nil {
		t.Fatalf("expected decoded temp field")
	}
}

func TestProcessInvalidPayloadIsDropped(t *testing.T) {
	ing := &mockIngester{}
	l := newTestListener(ing)

	err := l.Process("sensors", []byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, model.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	var ingestErr *model.IngestError
	if !errors.As(err, &ingestErr) || ingestErr.Stage != model.StageDecode {
		t.Fatalf("expected decode stage IngestError, got %v", err)
	}

	err = l.Process("sensors", []byte(`[1,2,3]`))
	if !errors.Is(err, model.ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
	if len(ing.readings) != 0 {
		t.Fatalf("expected no ingest for rejected payloads")
	}

	if err := l.Process("sensors", []byte(`{"ok":1}`)); err != nil {
		t.Fatalf("expected listener to keep processing, got %v", err)
	}
	if len(ing.readings) != 1 {
		t.Fatalf("expected the valid message to be ingested")
	}
}

func TestProcessReportsIngestFailureAndContinues(t *testing.T) {
	ing := &mockIngester{err: &model.IngestError{Stage: model.StagePersist, Err: model.ErrWrite}}
	l := newTestListener(ing)

	if err := l.Process("sensors", []byte(`{"a":1}`)); !errors.Is(err, model.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if err := l.Process("sensors", []byte(`{"a":2}`)); !errors.Is(err, model.ErrWrite) {
		t.Fatalf("expected ErrWrite on second message, got %v", err)
	}
	if len(ing.readings) != 2 {
		t.Fatalf("expected both messages attempted, got %d", len(ing.readings))
	}
}

func TestProcessRecoversFromPanic(t *testing.T) {
	l := newTestListener(&mockIngester{panicMsg: "boom"})

	if err := l.Process("sensors", []byte(`{"a":1}`)); err == nil {
		t.Fatalf("expected panic to be reported as an error")
	}
}

func TestProcessRunsOneMessageAtATime(t *testing.T) {
	ing := &mockIngester{delay: 2 * time.Millisecond}
	l := newTestListener(ing)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.HandleMessage(nil, &fakeMessage{topic: "sensors", payload: []byte(`{"a":1}`)})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&ing.maxInFlight); got != 1 {
		t.Fatalf("expected at most one ingest in flight, got %d", got)
	}
	if len(ing.readings) != 20 {
		t.Fatalf("expected every message ingested, got %d", len(ing.readings))
	}
}
