package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const deliveryTimeout = 10 * time.Second

// encoder renders one alert event as a target-specific JSON body.
type encoder func(a *Alert) ([]byte, error)

var encoders = map[string]encoder{
	"slack": slackBody,
	"teams": teamsBody,
	"http":  httpBody,
}

// deliver posts a to every configured webhook. Failures are logged per target
// and never reach the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		enc, ok := encoders[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		body, err := enc(a)
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "series", seriesLabel(a), "run_id", a.RunID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "series", seriesLabel(a), "state", a.State)
	}
}

// seriesLabel names the network series an alert was evaluated on, or "run"
// for rules over run diagnostics.
func seriesLabel(a *Alert) string {
	if a.Period == "" {
		return "run"
	}
	return a.Period + "/" + a.Role
}

func eventName(a *Alert) string {
	if a.State == StateResolved {
		return "alert_resolved"
	}
	return "alert_fired"
}

func headline(a *Alert) string {
	return fmt.Sprintf("%s fleetstats %s on %s", stateLabel(a), a.RuleName, seriesLabel(a))
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
}

func slackBody(a *Alert) ([]byte, error) {
	return json.Marshal(struct {
		Text        string            `json:"text"`
		Attachments []slackAttachment `json:"attachments"`
	}{
		Text: "*" + headline(a) + "*",
		Attachments: []slackAttachment{{
			Color: "#" + severityColor(a),
			Text:  a.Message,
			Fields: []slackField{
				{Title: "Series", Value: seriesLabel(a), Short: true},
				{Title: "Value", Value: fmt.Sprintf("%.2f", a.Value), Short: true},
				{Title: "Severity", Value: a.Severity, Short: true},
				{Title: "Run", Value: a.RunID, Short: true},
			},
		}},
	})
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func teamsBody(a *Alert) ([]byte, error) {
	facts := []teamsFact{
		{Name: "Period", Value: a.Period},
		{Name: "Role", Value: a.Role},
		{Name: "Value", Value: fmt.Sprintf("%.2f", a.Value)},
		{Name: "Run", Value: a.RunID},
	}
	if a.Period == "" {
		facts = append([]teamsFact{{Name: "Scope", Value: "run diagnostics"}}, facts[2:]...)
	}
	return json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a),
		"summary":    a.RuleName,
		"title":      headline(a),
		"text":       a.Message,
		"sections":   []map[string]any{{"facts": facts}},
	})
}

func httpBody(a *Alert) ([]byte, error) {
	return json.Marshal(struct {
		Event  string `json:"event"`
		Series string `json:"series"`
		Alert  *Alert `json:"alert"`
	}{eventName(a), seriesLabel(a), a})
}

func (e *Engine) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fleetstats-alerts")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func stateLabel(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	switch a.Severity {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(a *Alert) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
