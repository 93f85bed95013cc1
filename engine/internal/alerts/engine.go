package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetstats/fleetstats/engine/internal/config"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
	"github.com/fleetstats/fleetstats/pkg/types"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Period     string     `json:"period,omitempty"`
	Role       string     `json:"role,omitempty"`
	RunID      string     `json:"run_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	cfg  config.AlertRule
	cond Condition
}

// Engine evaluates alert rules against published snapshots and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: "rule:period/role"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts

	client     *http.Client
	now        func() time.Time
	deliveries sync.WaitGroup
}

// New creates an Engine from the alert configuration. An Engine with no
// rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	for _, r := range cfg.Rules {
		cond, err := ParseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, rule{cfg: r, cond: cond})
	}
	return e, nil
}

// Name implements the runner sink interface.
func (e *Engine) Name() string { return "alerts" }

// Publish implements the runner sink interface by evaluating snap.
func (e *Engine) Publish(_ context.Context, snap *statcache.Snapshot) error {
	e.Evaluate(snap)
	return nil
}

type target struct{ period, role string }

func targets(r rule, snap *statcache.Snapshot) []target {
	if !r.cond.PerSeries() {
		return []target{{}}
	}
	role := r.cfg.Role
	if role == "" {
		role = types.RoleOverall
	}
	if r.cfg.Period != "" {
		return []target{{r.cfg.Period, role}}
	}
	periods := snap.Periods()
	out := make([]target, 0, len(periods))
	for _, p := range periods {
		out = append(out, target{p, role})
	}
	return out
}

// Evaluate tests all configured rules against snap. Alerts that fire are
// stored and webhook delivery is triggered asynchronously. Alerts that were
// firing but whose condition is now false are resolved. A rule whose value
// cannot be determined for this run keeps its current state.
func (e *Engine) Evaluate(snap *statcache.Snapshot) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, r := range e.rules {
		for _, tg := range targets(r, snap) {
			fires, value, ok := r.cond.Eval(snap, tg.period, tg.role)
			if !ok {
				continue
			}
			key := r.cfg.Name + ":" + tg.period + "/" + tg.role
			if fires {
				e.fire(r, tg, key, snap.RunID(), value, now)
			} else {
				e.resolve(r, tg, key, now)
			}
		}
	}
}

func (e *Engine) fire(r rule, tg target, key, runID string, value float64, now time.Time) {
	cooldown := r.cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	e.mu.Lock()
	if _, firing := e.active[key]; firing || now.Sub(e.lastFire[key]) <= cooldown {
		e.mu.Unlock()
		return
	}
	sev := r.cfg.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       uuid.NewString(),
		RuleName: r.cfg.Name,
		Period:   tg.period,
		Role:     tg.role,
		RunID:    runID,
		Severity: sev,
		Value:    value,
		FiredAt:  now,
		State:    StateFiring,
	}
	a.Message = fmt.Sprintf("[%s] %s fired on %s: %s (value %.2f)",
		sev, r.cfg.Name, seriesLabel(a), r.cond, value)
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alerts: fired",
		"rule", r.cfg.Name,
		"period", tg.period,
		"role", tg.role,
		"value", value,
		"severity", sev,
	)
	e.deliverAsync(&alertCopy)
}

func (e *Engine) resolve(r rule, tg target, key string, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alerts: resolved", "rule", r.cfg.Name, "period", tg.period, "role", tg.role)
	e.deliverAsync(&alertCopy)
}

func (e *Engine) deliverAsync(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.deliveries.Add(1)
	go func() {
		defer e.deliveries.Done()
		e.deliver(a)
	}()
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.deliveries.Wait() }

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
