package service

import (
	"context"
	"fmt"
	"time"

	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const minutesPerDay = 1440

// IsOutsideBusinessHours reports whether ts falls outside the record's
// availability window for that weekday, evaluated in the record's
// timezone. A nil start means open from midnight, a nil end means open
// until end of day, so a day with both nil is always inside.
func IsOutsideBusinessHours(ts time.Time, record *models.BusinessHour) bool {
	local := ts.In(record.Location())
	start, end := record.DayWindow(local.Weekday())

	s, e := 0, minutesPerDay
	if start != nil {
		s = *start
	}
	if end != nil {
		e = *end
	}

	m := local.Hour()*60 + local.Minute()
	return m < s || m > e
}

// GateStore is the persistence surface of the business-hour gate.
type GateStore interface {
	GetBusinessHourForSession(ctx context.Context, sessionID string) (*models.BusinessHour, error)
	HasOutgoingMessageWithPrefix(ctx context.Context, prefix, to, sessionID string) (bool, error)
	SaveOutgoingMessage(ctx context.Context, om *models.OutgoingMessage) error
}

// BusinessHourGate answers inbound messages that arrive outside the
// device's configured hours with a single away notice per sender, and
// keeps the rest of the inbound chain from running while closed.
type BusinessHourGate struct {
	store    GateStore
	registry *Registry
	logger   *logrus.Logger
	now      func() time.Time
}

func NewBusinessHourGate(store GateStore, registry *Registry, logger *logrus.Logger) *BusinessHourGate {
	return &BusinessHourGate{
		store:    store,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleInbound reports whether the message was gated. Devices without
// a business-hour record are treated as always open.
func (g *BusinessHourGate) HandleInbound(ctx context.Context, msg *models.InboundMessage) (bool, error) {
	record, err := g.store.GetBusinessHourForSession(ctx, msg.SessionID)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	// Classify by when the message was sent, not when it was
	// processed; a backlog replayed after reconnect keeps its original
	// timestamps. Events without one fall back to the clock.
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = g.now()
	}
	if !IsOutsideBusinessHours(ts, record) {
		return false, nil
	}

	log := g.logger.WithFields(logrus.Fields{
		"session": msg.SessionID,
		"from":    msg.From,
	})

	// Reply-once guard. The check and the send are not atomic: two
	// messages from the same sender racing through here can both pass
	// the check and produce two notices. Accepted; the notice is
	// informational and the window for the race is one send round-trip.
	prefix := businessHourPrefix(record.PK)
	already, err := g.store.HasOutgoingMessageWithPrefix(ctx, prefix, msg.From, msg.SessionID)
	if err != nil {
		return true, err
	}
	if already {
		log.Debug("Away notice already sent to this sender")
		return true, nil
	}

	handle, err := g.registry.Lookup(msg.SessionID)
	if err != nil {
		log.WithError(err).Warn("No live session for away notice")
		return true, nil
	}

	body := RenderTemplate(record.Message, map[string]string{
		"name": senderName(msg),
	})
	corrID := fmt.Sprintf("%s%s", prefix, ulid.Make().String())
	if _, err := handle.Send(ctx, msg.From, body, &types.SendOptions{MessageID: corrID}); err != nil {
		log.WithError(err).Error("Failed to send away notice")
		return true, nil
	}
	if err := g.store.SaveOutgoingMessage(ctx, &models.OutgoingMessage{
		ID:        corrID,
		To:        msg.From,
		SessionID: msg.SessionID,
	}); err != nil {
		log.WithError(err).Warn("Failed to record away notice")
	}

	log.Info("Away notice sent")
	return true, nil
}

func businessHourPrefix(recordPK int64) string {
	return fmt.Sprintf("BH_%d_", recordPK)
}
