package service

import (
	"context"
	"strings"
	"sync"

	"wacast/internal/errors"
	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CredentialStore persists per-session authentication state.
type CredentialStore interface {
	SaveSessionCredential(ctx context.Context, cred *models.SessionCredential) error
	GetSessionCredential(ctx context.Context, sessionID, key string) (*models.SessionCredential, error)
	DeleteSessionCredential(ctx context.Context, sessionID, key string) error
	DeleteSessionCredentials(ctx context.Context, sessionID string) error
}

// Registry tracks live sessions by identifier. A device owns at most
// one live session; registering a second one for the same device evicts
// the first.
type Registry struct {
	gateway types.GatewayClient
	store   CredentialStore
	logger  *logrus.Logger

	sendsPerSecond float64
	sendBurst      int

	mu       sync.RWMutex
	sessions map[string]*SessionHandle
	byDevice map[int64]string
}

func NewRegistry(gateway types.GatewayClient, store CredentialStore, cfg models.GatewayConfig, logger *logrus.Logger) *Registry {
	return &Registry{
		gateway:        gateway,
		store:          store,
		logger:         logger,
		sendsPerSecond: cfg.SendsPerSecond,
		sendBurst:      cfg.SendBurst,
		sessions:       make(map[string]*SessionHandle),
		byDevice:       make(map[int64]string),
	}
}

// Register creates a live handle for the session. An existing session
// of the same device is unregistered first.
func (r *Registry) Register(sessionID string, devicePK int64) *SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byDevice[devicePK]; ok && prev != sessionID {
		delete(r.sessions, prev)
		r.logger.WithFields(logrus.Fields{
			"session": prev,
			"device":  devicePK,
		}).Info("Evicted previous session for device")
	}

	handle := &SessionHandle{
		id:       sessionID,
		devicePK: devicePK,
		gateway:  r.gateway,
		limiter:  rate.NewLimiter(rate.Limit(r.sendsPerSecond), r.sendBurst),
	}
	r.sessions[sessionID] = handle
	r.byDevice[devicePK] = sessionID
	return handle
}

// Unregister drops the live handle. Persisted credentials are kept so
// the session can resume without re-pairing.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	if r.byDevice[handle.devicePK] == sessionID {
		delete(r.byDevice, handle.devicePK)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Lookup returns the live handle for a session. Callers scanning many
// jobs must treat the not-found error as skip-and-continue, never as a
// reason to abort the whole pass.
func (r *Registry) Lookup(sessionID string) (*SessionHandle, error) {
	r.mu.RLock()
	handle, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeSessionNotFound, "no live session: "+sessionID)
	}
	return handle, nil
}

// SaveCredential persists one key-value blob of the session's auth
// state. Keys are sanitized the same way on write and read so callers
// can use raw credential file names.
func (r *Registry) SaveCredential(ctx context.Context, sessionID string, devicePK int64, key, data string) error {
	return r.store.SaveSessionCredential(ctx, &models.SessionCredential{
		SessionID: sessionID,
		DevicePK:  devicePK,
		Key:       sanitizeCredentialKey(key),
		Data:      data,
	})
}

// LoadCredential returns the stored blob, or "" when none exists.
func (r *Registry) LoadCredential(ctx context.Context, sessionID, key string) (string, error) {
	cred, err := r.store.GetSessionCredential(ctx, sessionID, sanitizeCredentialKey(key))
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}
	return cred.Data, nil
}

// DeleteCredential removes one blob; DropCredentials removes the whole
// session's persisted state (used on logout).
func (r *Registry) DeleteCredential(ctx context.Context, sessionID, key string) error {
	return r.store.DeleteSessionCredential(ctx, sessionID, sanitizeCredentialKey(key))
}

func (r *Registry) DropCredentials(ctx context.Context, sessionID string) error {
	return r.store.DeleteSessionCredentials(ctx, sessionID)
}

// sanitizeCredentialKey makes a credential file name safe to use as a
// key column value.
func sanitizeCredentialKey(key string) string {
	key = strings.ReplaceAll(key, "/", "__")
	return strings.ReplaceAll(key, ":", "-")
}

// SessionHandle is one live session. Sends pass through a per-session
// rate limiter; the limiter is a floor under the dispatcher's pacing,
// it protects interactive replies that bypass the pacer.
type SessionHandle struct {
	id       string
	devicePK int64
	gateway  types.GatewayClient
	limiter  *rate.Limiter
}

func (h *SessionHandle) ID() string {
	return h.id
}

func (h *SessionHandle) DevicePK() int64 {
	return h.devicePK
}

// Send delivers a text message to the canonical jid.
func (h *SessionHandle) Send(ctx context.Context, jid, text string, opts *types.SendOptions) (*types.SendMessageResponse, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := h.gateway.SendText(ctx, h.id, jid, text, opts)
	if err != nil {
		return nil, errors.WrapRetryable(err, errors.ErrCodeGatewaySend, "failed to send message")
	}
	return resp, nil
}

// MarkRead marks inbound messages of a chat as seen. Best-effort by
// convention; callers log failures and move on.
func (h *SessionHandle) MarkRead(ctx context.Context, jid string, messageIDs []string) error {
	return h.gateway.MarkSeen(ctx, h.id, jid, messageIDs)
}

// Status queries the gateway for the session's connection state.
func (h *SessionHandle) Status(ctx context.Context) (*types.Session, error) {
	return h.gateway.SessionStatus(ctx, h.id)
}

const (
	userJIDSuffix  = "@s.whatsapp.net"
	groupJIDSuffix = "@g.us"
)

// CanonicalJID normalizes a phone number or group identifier into the
// channel addressing format. Already-canonical ids pass through.
func CanonicalJID(identifier string) string {
	if strings.Contains(identifier, "@") {
		return identifier
	}
	if strings.Contains(identifier, "-") {
		return identifier + groupJIDSuffix
	}
	var digits strings.Builder
	for _, r := range identifier {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + userJIDSuffix
}
