package service

import (
	"context"
	"time"

	"wacast/internal/metrics"
	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/sirupsen/logrus"
)

// AutoReplier is the fallback for inbound messages that neither the
// business-hour gate nor a campaign consumed. Optional.
type AutoReplier interface {
	HandleInbound(ctx context.Context, msg *models.InboundMessage) error
}

// InboundRouter runs each inbound message through the handler chain:
// business-hour gate first, then campaign replies, then the fallback
// auto-replier. The first handler that consumes the message ends the
// chain.
type InboundRouter struct {
	gate      *BusinessHourGate
	campaigns *CampaignReplyHandler
	fallback  AutoReplier
	logger    *logrus.Logger
}

func NewInboundRouter(gate *BusinessHourGate, campaigns *CampaignReplyHandler, fallback AutoReplier, logger *logrus.Logger) *InboundRouter {
	return &InboundRouter{
		gate:      gate,
		campaigns: campaigns,
		fallback:  fallback,
		logger:    logger,
	}
}

// HandleEvent adapts the gateway event feed to the router; it is the
// wagateway.EventStream handler.
func (r *InboundRouter) HandleEvent(ctx context.Context, session string, event *types.MessageEvent) error {
	msg := &models.InboundMessage{
		SessionID: session,
		MessageID: event.ID,
		From:      event.From,
		PushName:  event.PushName,
		Text:      event.Body,
		Caption:   event.Caption,
	}
	if event.Timestamp > 0 {
		msg.Timestamp = time.Unix(event.Timestamp, 0)
	}
	return r.Route(ctx, msg)
}

func (r *InboundRouter) Route(ctx context.Context, msg *models.InboundMessage) error {
	log := r.logger.WithFields(logrus.Fields{
		"session": msg.SessionID,
		"from":    msg.From,
	})

	gated, err := r.gate.HandleInbound(ctx, msg)
	if err != nil {
		metrics.InboundEvents.WithLabelValues("error").Inc()
		return err
	}
	if gated {
		metrics.InboundEvents.WithLabelValues("gated").Inc()
		return nil
	}

	handled, err := r.campaigns.HandleInbound(ctx, msg)
	if err != nil {
		metrics.InboundEvents.WithLabelValues("error").Inc()
		return err
	}
	if handled {
		metrics.InboundEvents.WithLabelValues("campaign").Inc()
		return nil
	}

	if r.fallback != nil {
		if err := r.fallback.HandleInbound(ctx, msg); err != nil {
			metrics.InboundEvents.WithLabelValues("error").Inc()
			return err
		}
	}
	metrics.InboundEvents.WithLabelValues("passthrough").Inc()
	log.Debug("Inbound message passed through")
	return nil
}
