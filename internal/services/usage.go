package services

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/config"
	"tagforge/internal/costtracker"
	"tagforge/internal/models"
)

type operationKey struct{}

// WithOperation labels provider calls made with ctx for cost reporting.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

func operationFrom(ctx context.Context, fallback string) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return fallback
}

// usageRecorder prices token usage and forwards it to a cost tracker. A nil
// tracker disables recording.
type usageRecorder struct {
	tracker costtracker.CostTracker
	pricing map[string]config.PricingInfo
}

func (u usageRecorder) record(ctx context.Context, entry models.AIUsageLog) {
	if u.tracker == nil || entry.InputTokens+entry.OutputTokens == 0 {
		return
	}
	priceInfo, ok := u.pricing[entry.ModelName]
	if !ok {
		log.Warnf("Pricing info not found for model '%s'. Cannot record cost for %s.", entry.ModelName, entry.ServiceType)
		return
	}
	entry.Cost = float64(entry.InputTokens)*priceInfo.InputPerToken +
		float64(entry.OutputTokens)*priceInfo.OutputPerToken
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	event := costtracker.CostEvent{
		Operation: entry.ServiceType,
		AmountUSD: entry.Cost,
		Details: map[string]interface{}{
			"provider_name": entry.ProviderName,
			"model_name":    entry.ModelName,
			"input_tokens":  entry.InputTokens,
			"output_tokens": entry.OutputTokens,
			"timestamp":     entry.Timestamp.UTC().Format(time.RFC3339),
		},
	}
	if err := u.tracker.RecordCost(ctx, event); err != nil {
		log.Errorf("Failed to record AI usage for %s: %v", entry.ServiceType, err)
		return
	}
	log.Debugf("Recorded AI usage: Provider=%s, Service=%s, Model=%s, InputTokens=%d, OutputTokens=%d, Cost=%.8f",
		entry.ProviderName, entry.ServiceType, entry.ModelName, entry.InputTokens, entry.OutputTokens, entry.Cost)
}
