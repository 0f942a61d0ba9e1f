package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/malone1029/nia-results-tracker-sub003/internal/config"
	"github.com/malone1029/nia-results-tracker-sub003/internal/domain"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/observability"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// Delivery headers.
const (
	HeaderEvent     = "X-Hub-Event"
	HeaderDelivery  = "X-Hub-Delivery"
	HeaderSignature = "X-Hub-Signature-256"
)

// webhookTarget is one enabled hook with its own delivery cursor. The cursor
// only advances past an event once it was delivered or filtered out.
type webhookTarget struct {
	hook    config.WebhookConfig
	filter  eventFilter
	client  *http.Client
	cursor  int64
	started bool
}

type webhookDispatcher struct {
	engine   engine.Engine
	logger   *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
	mu       sync.Mutex
	targets  []*webhookTarget
}

// StartWebhooks polls the event log and posts matching events to every
// enabled webhook until ctx is canceled. Delivery starts after the newest
// event present at startup.
func StartWebhooks(ctx context.Context, e engine.Engine, hooks []config.WebhookConfig, logger *slog.Logger, metrics *observability.Metrics) {
	d := newWebhookDispatcher(e, hooks, logger, metrics)
	if d == nil {
		return
	}
	d.logger.Info("webhook delivery started", "targets", len(d.targets))
	go d.run(ctx)
}

func newWebhookDispatcher(e engine.Engine, hooks []config.WebhookConfig, logger *slog.Logger, metrics *observability.Metrics) *webhookDispatcher {
	if logger == nil {
		logger = observability.Discard()
	}
	var targets []*webhookTarget
	for _, hook := range hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		timeout := defaultWebhookTimeout
		if hook.TimeoutSeconds > 0 {
			timeout = time.Duration(hook.TimeoutSeconds) * time.Second
		}
		targets = append(targets, &webhookTarget{
			hook:   hook,
			filter: newEventFilter(hook.Events),
			client: &http.Client{Timeout: timeout},
		})
	}
	if len(targets) == 0 {
		return nil
	}
	return &webhookDispatcher{
		engine:   e,
		logger:   logger,
		metrics:  metrics,
		interval: defaultWebhookInterval,
		targets:  targets,
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.targets {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, t)
	}
}

func (d *webhookDispatcher) deliver(ctx context.Context, t *webhookTarget) {
	if !t.started {
		latest, err := d.engine.Repo.LatestEventID(ctx)
		if err != nil {
			d.logger.Warn("webhook cursor init failed", "url", t.hook.URL, "error", err)
			return
		}
		t.cursor, t.started = latest, true
	}
	batch, err := d.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, t.cursor)
	if err != nil {
		d.logger.Warn("webhook event fetch failed", "url", t.hook.URL, "error", err)
		return
	}
	for _, evt := range batch {
		if t.filter.match(evt.Type) {
			err := postEvent(ctx, t.client, t.hook.Secret, t.hook.URL, evt)
			d.metrics.ObserveWebhook(err)
			if err != nil {
				d.logger.Warn("webhook delivery failed", "url", t.hook.URL, "event_id", evt.ID, "event", evt.Type, "error", err)
				return
			}
			d.logger.Debug("webhook delivered", "url", t.hook.URL, "event_id", evt.ID, "event", evt.Type)
		}
		t.cursor = evt.ID
	}
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func postEvent(ctx context.Context, client *http.Client, secret, url string, evt domain.Event) error {
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    eventResponse(evt).Payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, evt.Type)
	req.Header.Set(HeaderDelivery, strconv.FormatInt(evt.ID, 10))
	if strings.TrimSpace(secret) != "" {
		req.Header.Set(HeaderSignature, "sha256="+signPayload(secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook responded %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func signPayload(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
