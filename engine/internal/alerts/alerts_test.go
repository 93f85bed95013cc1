package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetstats/fleetstats/engine/internal/config"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
	"github.com/fleetstats/fleetstats/engine/internal/uptime"
	"github.com/fleetstats/fleetstats/pkg/types"
)

// --- helpers ---

// fleet builds a 1-month snapshot with one node per raw value (30 samples each).
func fleet(raws ...float64) *statcache.Snapshot {
	var nodes []types.NodeSnapshot
	var hist []types.AvailabilityHistory
	for i, raw := range raws {
		id := string(rune('a'+i/26)) + string(rune('a'+i%26))
		vals := make([]any, 30)
		for j := range vals {
			vals[j] = raw
		}
		nodes = append(nodes, types.NodeSnapshot{ID: id, AbsoluteWeight: 1, Active: true})
		hist = append(hist, types.AvailabilityHistory{
			ID:      id,
			Samples: map[string]map[string][]any{types.Period1Month: {types.RoleOverall: vals}},
		})
	}
	opts := statcache.Options{Uptime: uptime.Options{Periods: []string{types.Period1Month}}}
	return statcache.Build(nodes, hist, opts, time.Now())
}

func healthy() *statcache.Snapshot {
	return fleet(999, 999, 999, 999, 999, 999, 999, 999, 999, 999)
}

func degraded() *statcache.Snapshot {
	// Node averages 90.0..94.5 in steps of 0.5, plus one node at 5%.
	return fleet(900, 905, 910, 915, 920, 925, 930, 935, 940, 945, 50)
}

func sparse() *statcache.Snapshot { return fleet(999, 999) }

func newEngine(t *testing.T, rules ...config.AlertRule) *Engine {
	t.Helper()
	e, err := New(config.AlertsConfig{Rules: rules})
	require.NoError(t, err)
	return e
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// --- ParseCondition ---

func TestParseCondition(t *testing.T) {
	valid := []string{
		"p50 < 95",
		"mean >= 90.5",
		"sample_count < 500",
		"two_sigma_low <= 80",
		"available == false",
		"available != true",
		"missing_history > 100",
		"statistical_low_nodes >= 5",
		"stddev != 0",
	}
	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			c, err := ParseCondition(s)
			require.NoError(t, err)
			assert.Equal(t, s, c.String())
		})
	}

	invalid := []string{
		"p50<95",
		"p50 < ",
		"latency < 5",
		"p50 ~ 5",
		"p50 < high",
		"available > true",
		"available == maybe",
	}
	for _, s := range invalid {
		t.Run("invalid "+s, func(t *testing.T) {
			_, err := ParseCondition(s)
			assert.Error(t, err)
		})
	}
}

func TestNew_RejectsBadCondition(t *testing.T) {
	_, err := New(config.AlertsConfig{Rules: []config.AlertRule{{Name: "x", Condition: "nope < 1"}}})
	assert.ErrorContains(t, err, `rule "x"`)
}

// --- Condition.Eval ---

func TestEval(t *testing.T) {
	snap := degraded()
	tests := []struct {
		cond      string
		wantFire  bool
		wantValue float64
		wantOK    bool
	}{
		{"p50 < 95", true, 92.25, true},
		{"p50 > 95", false, 92.25, true},
		{"sample_count == 10", true, 10, true},
		{"available == true", true, 1, true},
		{"available == false", false, 1, true},
		{"excluded_below_threshold >= 1", true, 1, true},
		{"statistical_low_nodes == 1", true, 1, true},
		{"below_central_nodes == 5", true, 5, true},
		{"statistical_high_nodes > 0", false, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			c, err := ParseCondition(tt.cond)
			require.NoError(t, err)
			fires, v, ok := c.Eval(snap, types.Period1Month, types.RoleOverall)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFire, fires)
			assert.InDelta(t, tt.wantValue, v, 1e-9)
		})
	}
}

func TestEval_UnavailableSeries(t *testing.T) {
	snap := sparse()

	c, _ := ParseCondition("p50 < 95")
	_, _, ok := c.Eval(snap, types.Period1Month, types.RoleOverall)
	assert.False(t, ok, "statistics fields never guess")

	c, _ = ParseCondition("available == false")
	fires, _, ok := c.Eval(snap, types.Period1Month, types.RoleOverall)
	assert.True(t, ok)
	assert.True(t, fires)

	c, _ = ParseCondition("unknown_nodes == 2")
	fires, _, ok = c.Eval(snap, types.Period1Month, types.RoleOverall)
	assert.True(t, ok)
	assert.True(t, fires)
}

// --- Engine lifecycle ---

func TestEngine_FireAndResolve(t *testing.T) {
	e := newEngine(t, config.AlertRule{Name: "low-median", Condition: "p50 < 95", Severity: "critical"})

	e.Evaluate(degraded())
	active := e.Active()
	require.Len(t, active, 1)
	a := active[0]
	assert.Equal(t, StateFiring, a.State)
	assert.Equal(t, "critical", a.Severity)
	assert.Equal(t, types.Period1Month, a.Period)
	assert.Equal(t, types.RoleOverall, a.Role)
	assert.NotEmpty(t, a.ID)
	assert.Contains(t, a.Message, "low-median")

	e.Evaluate(healthy())
	active = e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, StateResolved, active[0].State)
	assert.NotNil(t, active[0].ResolvedAt)
}

func TestEngine_UnavailableKeepsState(t *testing.T) {
	e := newEngine(t, config.AlertRule{Name: "low-median", Condition: "p50 < 95"})
	e.Evaluate(degraded())
	e.Evaluate(sparse())

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, StateFiring, active[0].State)
}

func TestEngine_Cooldown(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := newEngine(t, config.AlertRule{Name: "r", Condition: "p50 < 95", Cooldown: time.Hour})
	e.now = clk.now

	e.Evaluate(degraded())
	e.Evaluate(healthy())
	clk.t = clk.t.Add(10 * time.Minute)
	e.Evaluate(degraded())

	firing := 0
	for _, a := range e.Active() {
		if a.State == StateFiring {
			firing++
		}
	}
	assert.Equal(t, 0, firing, "re-fire suppressed within cooldown")

	clk.t = clk.t.Add(2 * time.Hour)
	e.Evaluate(degraded())
	var states []string
	for _, a := range e.Active() {
		states = append(states, a.State)
	}
	assert.Contains(t, states, StateFiring)
}

func TestEngine_DefaultSeverityAndRunScope(t *testing.T) {
	e := newEngine(t, config.AlertRule{Name: "run", Condition: "excluded_below_threshold > 0"})
	e.Evaluate(degraded())

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "warning", active[0].Severity)
	assert.Empty(t, active[0].Period)
	assert.Contains(t, active[0].Message, "on run")
}

func TestEngine_PeriodScope(t *testing.T) {
	e := newEngine(t, config.AlertRule{Name: "r", Condition: "available == false", Period: types.Period5Years})
	e.Evaluate(healthy())

	active := e.Active()
	require.Len(t, active, 1, "an unconfigured period has no statistics")
	assert.Equal(t, types.Period5Years, active[0].Period)
}

func TestEngine_NoRulesIsNoop(t *testing.T) {
	e := newEngine(t)
	e.Evaluate(degraded())
	assert.Empty(t, e.Active())
	assert.Equal(t, "alerts", e.Name())
}

func TestEngine_ResolvedExpireFromActive(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := newEngine(t, config.AlertRule{Name: "r", Condition: "p50 < 95"})
	e.now = clk.now
	e.Evaluate(degraded())
	e.Evaluate(healthy())
	clk.t = clk.t.Add(2 * time.Hour)
	assert.Empty(t, e.Active())
}

// --- Webhooks ---

type capture struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		c.mu.Lock()
		c.bodies = append(c.bodies, m)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestWebhooks_Delivery(t *testing.T) {
	var slack, teams, generic capture
	slackSrv := httptest.NewServer(slack.handler(http.StatusOK))
	defer slackSrv.Close()
	teamsSrv := httptest.NewServer(teams.handler(http.StatusOK))
	defer teamsSrv.Close()
	httpSrv := httptest.NewServer(generic.handler(http.StatusInternalServerError))
	defer httpSrv.Close()

	t.Setenv("FS_SLACK", slackSrv.URL)
	t.Setenv("FS_TEAMS", teamsSrv.URL)
	t.Setenv("FS_HTTP", httpSrv.URL)

	e, err := New(config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "low", Condition: "p50 < 95", Severity: "critical"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "FS_SLACK"},
			{Type: "teams", URLEnv: "FS_TEAMS"},
			{Type: "http", URLEnv: "FS_HTTP"},
			{Type: "slack"},
		},
	})
	require.NoError(t, err)

	e.Evaluate(degraded())
	e.Wait()
	e.Evaluate(healthy())
	e.Wait()

	require.Len(t, slack.bodies, 2)
	assert.Equal(t, "*[CRITICAL] fleetstats low on 1_month/overall*", slack.bodies[0]["text"])
	assert.Contains(t, slack.bodies[1]["text"], "[RESOLVED]")
	attachments, ok := slack.bodies[0]["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "#FF4F6A", att["color"])
	fields := att["fields"].([]any)
	require.Len(t, fields, 4)
	assert.Equal(t, map[string]any{"title": "Series", "value": "1_month/overall", "short": true}, fields[0])
	assert.Equal(t, "92.25", fields[1].(map[string]any)["value"])

	require.Len(t, teams.bodies, 2)
	assert.Equal(t, "MessageCard", teams.bodies[0]["@type"])
	assert.Equal(t, "FF4F6A", teams.bodies[0]["themeColor"])
	assert.Equal(t, "2EB67D", teams.bodies[1]["themeColor"])
	sections := teams.bodies[0]["sections"].([]any)
	facts := sections[0].(map[string]any)["facts"].([]any)
	assert.Equal(t, map[string]any{"name": "Period", "value": "1_month"}, facts[0])
	assert.Equal(t, map[string]any{"name": "Role", "value": "overall"}, facts[1])

	require.Len(t, generic.bodies, 2, "a failing target still receives both events")
	assert.Equal(t, "alert_fired", generic.bodies[0]["event"])
	assert.Equal(t, "alert_resolved", generic.bodies[1]["event"])
	assert.Equal(t, "1_month/overall", generic.bodies[0]["series"])
	alert, ok := generic.bodies[0]["alert"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "low", alert["rule_name"])
	assert.Equal(t, StateFiring, alert["state"])
}

func TestWebhookBodies_RunScope(t *testing.T) {
	a := &Alert{RuleName: "missing", RunID: "r1", Severity: "info", Value: 120, State: StateFiring}

	b, err := teamsBody(a)
	require.NoError(t, err)
	var card map[string]any
	require.NoError(t, json.Unmarshal(b, &card))
	assert.Equal(t, "[INFO] fleetstats missing on run", card["title"])
	facts := card["sections"].([]any)[0].(map[string]any)["facts"].([]any)
	require.Len(t, facts, 3)
	assert.Equal(t, map[string]any{"name": "Scope", "value": "run diagnostics"}, facts[0])

	b, err = httpBody(a)
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(b, &ev))
	assert.Equal(t, "run", ev["series"])
}
