package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/smokestack-project/smokestack/pkg/config"
	"github.com/smokestack-project/smokestack/pkg/metrics"
	"github.com/smokestack-project/smokestack/pkg/models"
)

// Deliverer pushes one serialized event to a sink target.
type Deliverer interface {
	Deliver(ctx context.Context, sink *models.SystemSink, payload []byte) error
}

// WebhookDeliverer posts events as JSON to the sink target URL.
type WebhookDeliverer struct {
	Client *http.Client
}

// Deliver posts the payload. Any non-2xx response is an error.
func (d *WebhookDeliverer) Deliver(ctx context.Context, sink *models.SystemSink, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sink.Target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink %s: unexpected status %d", sink.ID, resp.StatusCode)
	}
	return nil
}

// Dispatcher delivers events to system sinks. Each sink gets its own worker
// and queue so one unreachable target cannot delay the others. Failed
// deliveries are retried with exponential backoff; a sink whose retries are
// exhausted is marked degraded until a later delivery succeeds.
type Dispatcher struct {
	deliverer Deliverer
	cfg       config.SinksConfig

	mu       sync.Mutex
	queues   map[string]chan Event
	degraded map[string]bool
	wg       sync.WaitGroup
	closed   bool
}

// NewDispatcher creates a dispatcher using the given deliverer.
func NewDispatcher(deliverer Deliverer, cfg config.SinksConfig) *Dispatcher {
	return &Dispatcher{
		deliverer: deliverer,
		cfg:       cfg,
		queues:    make(map[string]chan Event),
		degraded:  make(map[string]bool),
	}
}

// Dispatch enqueues the event for every sink whose selector matches the
// operation and whose kind filter accepts it. Never blocks the caller: a
// sink with a full queue drops the event and is marked degraded.
func (d *Dispatcher) Dispatch(ev Event, sinks []*models.SystemSink) {
	for _, sink := range sinks {
		if ev.Operation == nil || !sink.Selector.Matches(ev.Operation) || !sink.WantsKind(string(ev.Kind)) {
			continue
		}
		d.enqueue(sink, ev)
	}
}

// Remove stops the worker for the sink. Called after sink deregistration.
func (d *Dispatcher) Remove(sinkID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[sinkID]; ok {
		delete(d.queues, sinkID)
		close(q)
	}
	delete(d.degraded, sinkID)
}

// Degraded returns the ids of sinks currently failing delivery, sorted order
// not guaranteed.
func (d *Dispatcher) Degraded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.degraded))
	for id := range d.degraded {
		out = append(out, id)
	}
	return out
}

// Close stops all workers and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for id, q := range d.queues {
		delete(d.queues, id)
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(sink *models.SystemSink, ev Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[sink.ID]
	if !ok {
		q = make(chan Event, 64)
		d.queues[sink.ID] = q
		d.wg.Add(1)
		go d.worker(sink.Clone(), q)
	}
	d.mu.Unlock()

	select {
	case q <- ev:
	default:
		slog.Warn("Sink queue full, dropping event", "sink_id", sink.ID, "kind", ev.Kind)
		d.markDegraded(sink.ID, true)
		metrics.SinkDeliveriesTotal.WithLabelValues("dropped").Inc()
	}
}

func (d *Dispatcher) worker(sink *models.SystemSink, q <-chan Event) {
	defer d.wg.Done()
	for ev := range q {
		d.deliverOne(sink, ev)
	}
}

func (d *Dispatcher) deliverOne(sink *models.SystemSink, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal sink event", "sink_id", sink.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Deadline)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.cfg.MaxRetries)), ctx)

	err = backoff.Retry(func() error {
		return d.deliverer.Deliver(ctx, sink, payload)
	}, policy)
	if err != nil {
		slog.Warn("Sink delivery failed, marking degraded",
			"sink_id", sink.ID, "target", sink.Target, "error", err)
		d.markDegraded(sink.ID, true)
		metrics.SinkDeliveriesTotal.WithLabelValues("failed").Inc()
		return
	}
	d.markDegraded(sink.ID, false)
	metrics.SinkDeliveriesTotal.WithLabelValues("delivered").Inc()
}

func (d *Dispatcher) markDegraded(sinkID string, degraded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if degraded {
		d.degraded[sinkID] = true
	} else {
		delete(d.degraded, sinkID)
	}
	metrics.SinksDegraded.Set(float64(len(d.degraded)))
}
