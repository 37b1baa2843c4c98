package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"routeplan/internal/metrics"
	"routeplan/internal/store"
)

const batchSize = 50

type Worker struct {
	Store        store.Store
	HTTP         *http.Client
	MaxAttempts  int
	PollInterval time.Duration
	Log          zerolog.Logger
}

func NewWorker(s store.Store, maxAttempts int, poll, timeout time.Duration, log zerolog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if poll <= 0 {
		poll = time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: timeout}, MaxAttempts: maxAttempts, PollInterval: poll, Log: log}
}

// Run polls for due deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, batchSize)
	if err != nil {
		w.Log.Warn().Err(err).Msg("fetch due webhooks")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", Sign(it.Secret, time.Now(), it.Payload))
	}

	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
		if !success {
			lastErr = "status " + strconv.Itoa(code)
		}
	}

	status := store.DeliveryDelivered
	switch {
	case success:
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = store.DeliveryFailed
		err = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
	default:
		status = store.DeliveryRetry
		next := time.Now().Add(nextBackoff(it.Attempts))
		err = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	if err != nil {
		w.Log.Error().Err(err).Str("delivery_id", it.ID).Msg("record webhook outcome")
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
	w.Log.Debug().Str("delivery_id", it.ID).Str("status", status).Int("code", code).Int("latency_ms", latency).Msg("webhook attempt")
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
