package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rockmrack/crownsafe/internal/config"
	"go.uber.org/fx"
)

// Notifier fires best-effort webhook events for ingestion cycles and
// plan completions. A nil or unconfigured Notifier is a no-op.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func Module() fx.Option {
	return fx.Provide(func(cfg config.Config) *Notifier {
		return New(cfg.Notify.Endpoint, cfg.Notify.Timeout)
	})
}

func New(endpoint, timeout string) *Notifier {
	if endpoint == "" {
		return nil
	}
	dur, err := time.ParseDuration(timeout)
	if err != nil || dur <= 0 {
		dur = 5 * time.Second
	}
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: dur},
	}
}

func (n *Notifier) Event(event string, payload map[string]any) {
	if n == nil || n.endpoint == "" {
		return
	}
	body := map[string]any{
		"event":   event,
		"payload": payload,
		"ts":      time.Now().UTC().Format(time.RFC3339),
	}
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, n.endpoint, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if resp, err := n.client.Do(req); err == nil {
		resp.Body.Close()
	}
}
