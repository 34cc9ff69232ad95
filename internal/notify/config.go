package notify

import (
	"fmt"
	"os"
	"strings"

	"agent-arena/internal/config"

	"github.com/goccy/go-json"
)

// ConfigFrom resolves the env settings and the target list. Targets come
// from NOTIFY_TARGETS_PATH when set, else from NOTIFY_TARGETS_JSON.
func ConfigFrom(cfg config.NotifyConfig) (Config, error) {
	out := Config{
		Enabled:          cfg.Enabled,
		Workers:          cfg.Workers,
		QueueSize:        cfg.QueueSize,
		RetryMax:         cfg.RetryMax,
		RetryBase:        cfg.RetryBase,
		FailureThreshold: cfg.FailureThreshold,
		CircuitOpen:      cfg.CircuitOpen,
		RequestTimeout:   cfg.RequestTimeout,
	}
	if !out.Enabled {
		return out, nil
	}
	raw := strings.TrimSpace(cfg.TargetsJSON)
	if path := strings.TrimSpace(cfg.TargetsPath); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read notify targets %q: %w", path, err)
		}
		raw = strings.TrimSpace(string(b))
	}
	if raw == "" {
		return out, nil
	}
	targets, err := parseTargets(raw)
	if err != nil {
		return Config{}, err
	}
	out.Targets = targets
	return out, nil
}

func parseTargets(raw string) ([]Target, error) {
	var targets []Target
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("parse notify targets: %w", err)
	}
	filtered := make([]Target, 0, len(targets))
	for _, t := range targets {
		t.Platform = strings.ToLower(strings.TrimSpace(t.Platform))
		t.ScopeType = strings.ToLower(strings.TrimSpace(t.ScopeType))
		if t.ScopeType == "" {
			t.ScopeType = ScopeAll
		}
		if t.ScopeType != ScopeAll && t.ScopeType != ScopeRoom && t.ScopeType != ScopeGame {
			continue
		}
		t.Endpoint = strings.TrimSpace(t.Endpoint)
		if t.Endpoint == "" || !t.Enabled {
			continue
		}
		for i := range t.EventAllowlist {
			t.EventAllowlist[i] = strings.ToLower(strings.TrimSpace(t.EventAllowlist[i]))
		}
		filtered = append(filtered, t)
	}
	return filtered, nil
}
