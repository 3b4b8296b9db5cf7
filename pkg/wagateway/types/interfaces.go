package types

import (
	"context"
)

// GatewayClient is the channel layer: a per-session WhatsApp connection
// multiplexed behind one HTTP gateway.
type GatewayClient interface {
	SendText(ctx context.Context, session, chatID, text string, opts *SendOptions) (*SendMessageResponse, error)
	MarkSeen(ctx context.Context, session, chatID string, messageIDs []string) error
	SessionStatus(ctx context.Context, session string) (*Session, error)
	StartSession(ctx context.Context, session string) error
	StopSession(ctx context.Context, session string) error
}

// EventHandler consumes inbound message events from the feed.
type EventHandler func(ctx context.Context, session string, event *MessageEvent) error
