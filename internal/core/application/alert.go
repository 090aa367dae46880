package application

import (
	"context"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

func publishAlert(alerts ports.Alerts, topic ports.Topic, message interface{}) {
	if alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := alerts.Publish(ctx, topic, message); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish alert")
	}
}

func publishEvents(repo domain.EventRepository, topic string, events ...domain.Event) {
	if repo == nil || len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := repo.Publish(ctx, topic, events...); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish events")
	}
}

// formatBTC renders an amount of sats as BTC with 8 decimals, for alerts only.
func formatBTC(sats uint64) string {
	return decimal.NewFromInt(int64(sats)).Shift(-8).StringFixed(8)
}
