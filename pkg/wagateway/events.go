package wagateway

import (
	"context"
	"encoding/json"
	"time"

	"wacast/pkg/wagateway/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// EventStream subscribes to the gateway's websocket event feed and
// delivers inbound message events to the registered handler. The feed
// carries events for every session on the gateway; routing by session
// identifier is the handler's concern.
type EventStream struct {
	url            string
	apiKey         string
	handler        types.EventHandler
	logger         *logrus.Logger
	reconnectDelay time.Duration
	maxReconnect   time.Duration
}

func NewEventStream(url, apiKey string, handler types.EventHandler, logger *logrus.Logger) *EventStream {
	return &EventStream{
		url:            url,
		apiKey:         apiKey,
		handler:        handler,
		logger:         logger,
		reconnectDelay: 5 * time.Second,
		maxReconnect:   60 * time.Second,
	}
}

// Run connects and consumes events until the context is cancelled,
// reconnecting with backoff on connection loss.
func (s *EventStream) Run(ctx context.Context) {
	delay := s.reconnectDelay
	for {
		start := time.Now()
		err := s.consume(ctx)
		if time.Since(start) > s.maxReconnect {
			// The connection was healthy for a while; start the backoff
			// over instead of carrying an old penalty.
			delay = s.reconnectDelay
		}
		if err != nil && ctx.Err() == nil {
			s.logger.WithError(err).WithField("retry_in", delay.String()).
				Warn("Event stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.maxReconnect {
			delay = s.maxReconnect
		}
	}
}

func (s *EventStream) consume(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if s.apiKey != "" {
		opts.HTTPHeader = map[string][]string{"X-Api-Key": {s.apiKey}}
	}

	conn, _, err := websocket.Dial(ctx, s.url, opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Inbound traffic is unbounded; don't let the default read limit
	// kill the connection on a large payload.
	conn.SetReadLimit(1 << 20)

	s.logger.WithField("url", s.url).Info("Event stream connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.dispatch(ctx, data)
	}
}

func (s *EventStream) dispatch(ctx context.Context, data []byte) {
	var envelope types.EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.WithError(err).Debug("Discarding malformed event")
		return
	}

	if envelope.Event != "message" {
		return
	}

	var event types.MessageEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		s.logger.WithError(err).WithField("session", envelope.Session).
			Warn("Discarding malformed message event")
		return
	}

	// Own outbound echoes are not inbound traffic.
	if event.FromMe {
		return
	}

	if err := s.handler(ctx, envelope.Session, &event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"session":    envelope.Session,
			"message_id": event.ID,
		}).Error("Inbound event handler failed")
	}
}
