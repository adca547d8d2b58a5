// Package alert delivers operational notifications on a best-effort basis.
// Payloads are reduced to a per-event whitelist before leaving the process,
// and anything that still looks like a secret is dropped outright.
package alert

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Event string

const (
	EventTradeOpen  Event = "TRADE_OPEN"
	EventTradeClose Event = "TRADE_CLOSE"
	EventDailyHalt  Event = "DAILY_HALT"
	EventBotRestart Event = "BOT_RESTART"
	EventKillSwitch Event = "KILL_SWITCH"
)

const (
	DefaultDedupeWindow = time.Minute
	maxBodyLen          = 2000
)

var secretPatterns = []string{"token", "password", "api_key", "authorization", "smtp_pass", "secret"}

var eventWhitelist = map[Event][]string{
	EventTradeOpen:  {"pair", "strategy", "direction", "units", "entry_price", "sl_price", "tp_price", "time_utc"},
	EventTradeClose: {"pair", "strategy", "direction", "result", "exit_price", "pnl_pips", "pnl_quote", "time_utc"},
	EventDailyHalt:  {"date", "drawdown", "threshold", "mode"},
	EventBotRestart: {"service", "handled_by", "startup_time_utc", "version"},
	EventKillSwitch: {"enabled", "source", "reason", "pairs_closed", "time_utc"},
}

// Provider ships one formatted alert somewhere. Implementations must not
// block indefinitely; failures are logged and swallowed by the service.
type Provider interface {
	Send(event Event, subject, body string) error
	Name() string
}

type Service struct {
	Providers    []Provider
	Environment  string
	DedupeWindow time.Duration
	Logger       *zap.Logger

	mu     sync.Mutex
	recent map[string]time.Time
}

// Send sanitizes, dedupes and fans the alert out. The return value reports
// whether delivery was attempted; it is informational only and callers must
// never let it affect command outcomes.
func (s *Service) Send(event Event, payload map[string]any) bool {
	if s == nil {
		return false
	}
	clean := sanitize(event, payload)
	raw, _ := json.Marshal(clean)
	fingerprint := string(event) + ":" + string(raw)

	window := s.DedupeWindow
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	now := time.Now()
	s.mu.Lock()
	if s.recent == nil {
		s.recent = map[string]time.Time{}
	}
	if seen, ok := s.recent[fingerprint]; ok && now.Sub(seen) < window {
		s.mu.Unlock()
		return false
	}
	s.recent[fingerprint] = now
	s.mu.Unlock()

	subjectCore := "bot"
	if pair, ok := clean["pair"].(string); ok && pair != "" {
		subjectCore = pair
	} else if svc, ok := clean["service"].(string); ok && svc != "" {
		subjectCore = svc
	}
	subject := "[" + s.Environment + "][" + string(event) + "] " + subjectCore

	body, _ := json.MarshalIndent(clean, "", "  ")
	text := string(body)
	if len(text) > maxBodyLen {
		text = text[:maxBodyLen] + "\n...<truncated>"
	}
	if containsSecret(text) || containsSecret(subject) {
		if s.Logger != nil {
			s.Logger.Error("alert dropped due to secret-like content", zap.String("event", string(event)))
		}
		return false
	}

	for _, provider := range s.Providers {
		if err := provider.Send(event, subject, text); err != nil && s.Logger != nil {
			s.Logger.Warn("alert provider failed",
				zap.String("provider", provider.Name()),
				zap.String("event", string(event)),
				zap.Error(err),
			)
		}
	}
	return true
}

func sanitize(event Event, payload map[string]any) map[string]any {
	clean := map[string]any{}
	for _, key := range eventWhitelist[event] {
		if value, ok := payload[key]; ok && value != nil {
			clean[key] = value
		}
	}
	return clean
}

func containsSecret(text string) bool {
	lowered := strings.ToLower(text)
	for _, pattern := range secretPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
