package alertsmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/shopspring/decimal"
)

const (
	serviceName = "pegd"

	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"

	maxRetries = 5
)

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	baseUrl    string
	esploraUrl string
	httpClient *http.Client
}

func NewService(alertManagerURL, esploraURL string) ports.Alerts {
	return &service{
		baseUrl:    alertManagerURL,
		esploraUrl: strings.TrimSuffix(esploraURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  severityInfo,
	}

	desc := ""
	annotations := map[string]string{}
	switch topic {
	case ports.CollateralShortfall:
		labels["severity"] = severityCritical
		annotations["firing_title"] = "🚨 Mint Denied: Collateral Shortfall"
		m, ok := message.(map[string]string)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatShortfallAlert(m)
	case ports.AttestationProduced:
		m, ok := message.(map[string]string)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		if m["fullyReserved"] == "false" {
			labels["severity"] = severityCritical
			annotations["firing_title"] = "🚨 Attestation: Under-Reserved"
		} else {
			annotations["firing_title"] = "🧾 Attestation Produced"
		}
		labels["attestation_id"] = m["id"]
		desc = formatAttestationAlert(m)
	case ports.FeedDegraded:
		labels["severity"] = severityWarning
		annotations["firing_title"] = "⚠️ Reserve Feed Degraded"
		desc = formatGenericAlert(toMap(message))
	case ports.RedemptionExpired:
		labels["severity"] = severityWarning
		annotations["firing_title"] = "⏳ Redemption Expired"
		m := toMap(message)
		if id, ok := m["intentId"]; ok {
			labels["intent_id"] = fmt.Sprintf("%v", id)
		}
		desc = s.formatRedemptionExpiredAlert(m)
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    time.Now(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) sendAlert(ctx context.Context, alerts Alert) error {
	payload, err := json.Marshal([]Alert{alerts})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	baseDelay := 100 * time.Millisecond

	for attempt := range maxRetries {
		req, err := http.NewRequestWithContext(ctx, "POST", s.baseUrl, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			// Network error - retry with backoff
			if attempt < maxRetries-1 {
				// exponential: 100ms, 200ms, 400ms, 800ms, 1600ms
				delay := baseDelay * time.Duration(1<<uint(attempt))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			return nil
		}

		_ = resp.Body.Close()

		// Retry on 5xx (server errors), but not on 4xx (client errors)
		if resp.StatusCode >= 500 {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<uint(attempt))

				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		// 4xx error or final 5xx error
		return fmt.Errorf(
			"failed to send alert to AlertManager with status %d after %d attempts",
			resp.StatusCode, attempt+1,
		)
	}

	return fmt.Errorf("failed to send alert after %d attempts", maxRetries)
}

func formatShortfallAlert(data map[string]string) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*Denied mint:* %s tokens", data["tokenAmount"]))

	lines = append(lines, "\n*Reserve:*")
	lines = append(lines, fmt.Sprintf("• Locked: %s", formatBTC(data["lockedSats"])))
	lines = append(lines, fmt.Sprintf("• Required: %s", formatBTC(data["requiredSats"])))
	lines = append(lines, fmt.Sprintf("• Shortfall: %s", formatBTC(data["shortfallSats"])))
	lines = append(lines, fmt.Sprintf(
		"• Collateralization: %s%%", data["collateralizationPct"],
	))
	return strings.Join(lines, "\n")
}

func formatAttestationAlert(data map[string]string) string {
	lines := make([]string, 0)
	lines = append(lines, fmt.Sprintf("*ID:* `%s`", data["id"]))

	lines = append(lines, "\n*Peg:*")
	lines = append(lines, fmt.Sprintf("• Outstanding: %s tokens", data["outstandingTokens"]))
	lines = append(lines, fmt.Sprintf("• Locked: %s", formatBTC(data["lockedSats"])))
	lines = append(lines, fmt.Sprintf("• Required: %s", formatBTC(data["requiredSats"])))
	lines = append(lines, fmt.Sprintf(
		"• Collateralization: %s%%", data["collateralizationPct"],
	))
	lines = append(lines, fmt.Sprintf("• Fully reserved: %s", data["fullyReserved"]))
	return strings.Join(lines, "\n")
}

func (s *service) formatRedemptionExpiredAlert(data map[string]any) string {
	lines := make([]string, 0)
	if addr, ok := data["lockAddress"]; ok && s.esploraUrl != "" {
		lines = append(lines, fmt.Sprintf("%s/address/%v", s.esploraUrl, addr))
	}
	lines = append(lines, formatGenericAlert(data))
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0)
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, data[key]))
	}
	return strings.Join(lines, "\n")
}

func toMap(message any) map[string]any {
	switch m := message.(type) {
	case map[string]any:
		return m
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	default:
		return map[string]any{"event": message}
	}
}

// formatBTC renders a decimal amount of sats as BTC, trimming trailing zeros.
func formatBTC(sats string) string {
	amount, err := decimal.NewFromString(sats)
	if err != nil {
		return sats
	}
	return fmt.Sprintf("%s BTC", amount.Shift(-8).String())
}
