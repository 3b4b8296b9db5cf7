package models

import "time"

// DeviceStatus mirrors the connection status reported by the gateway.
type DeviceStatus string

const (
	DeviceStatusOpen   DeviceStatus = "open"
	DeviceStatusClosed DeviceStatus = "close"
)

// Device is a tenant-owned messaging endpoint identity. A device has at
// most one live session at a time.
type Device struct {
	PK        int64        `db:"pk_id"`
	ID        string       `db:"id"`
	UserID    int64        `db:"user_id"`
	Phone     string       `db:"phone"`
	Status    DeviceStatus `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// SessionCredential is one key-value entry of a session's persisted
// authentication state.
type SessionCredential struct {
	SessionID string `db:"session_id"`
	DevicePK  int64  `db:"device_id"`
	Key       string `db:"id"`
	Data      string `db:"data"`
}

// SessionBinding pairs a persisted session with its owning device.
type SessionBinding struct {
	SessionID string `db:"session_id"`
	DevicePK  int64  `db:"device_id"`
}

// Broadcast is a one-shot fan-out job. Recipients keep their stored
// order; IsSent flips once, after a full delivery pass.
type Broadcast struct {
	PK         int64     `db:"pk_id"`
	ID         string    `db:"id"`
	DevicePK   int64     `db:"device_id"`
	Name       string    `db:"name"`
	Message    string    `db:"message"`
	Recipients []string  `db:"recipients"`
	Schedule   time.Time `db:"schedule"`
	DelayMs    int64     `db:"delay_ms"`
	IsSent     bool      `db:"is_sent"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`

	// SessionID is the owning device's live session, populated by the
	// due-job query. Empty when the device has no session row.
	SessionID string `db:"-"`
}

// Delay returns the configured inter-recipient delay.
func (b *Broadcast) Delay() time.Duration {
	return time.Duration(b.DelayMs) * time.Millisecond
}

// RecipientWildcard in a campaign allow-list admits any sender.
const RecipientWildcard = "*"

// Campaign is a standing registration program backed by a contact group.
type Campaign struct {
	PK                   int64     `db:"pk_id"`
	ID                   string    `db:"id"`
	DevicePK             int64     `db:"device_id"`
	GroupPK              int64     `db:"group_id"`
	Name                 string    `db:"name"`
	SyntaxRegistration   string    `db:"syntax_registration"`
	SyntaxUnregistration string    `db:"syntax_unregistration"`
	RegistrationMessage  string    `db:"registration_message"`
	MessageRegistered    string    `db:"message_registered"`
	MessageFailed        string    `db:"message_failed"`
	MessageUnregistered  string    `db:"message_unregistered"`
	Recipients           []string  `db:"recipients"`
	DelayMs              int64     `db:"delay_ms"`
	IsSent               bool      `db:"is_sent"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`

	SessionID string `db:"-"`
}

func (c *Campaign) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// AllowsSender reports whether the allow-list admits the given phone.
func (c *Campaign) AllowsSender(phone string) bool {
	for _, r := range c.Recipients {
		if r == RecipientWildcard || r == phone {
			return true
		}
	}
	return false
}

// CampaignMessage is a scheduled drip message belonging to a campaign.
type CampaignMessage struct {
	PK         int64     `db:"pk_id"`
	ID         string    `db:"id"`
	CampaignPK int64     `db:"campaign_id"`
	Message    string    `db:"message"`
	Schedule   time.Time `db:"schedule"`
	DelayMs    int64     `db:"delay_ms"`
	IsSent     bool      `db:"is_sent"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`

	// Populated by the due-job query from the campaign's backing group.
	SessionID  string   `db:"-"`
	Recipients []string `db:"-"`
}

func (m *CampaignMessage) Delay() time.Duration {
	return time.Duration(m.DelayMs) * time.Millisecond
}

// Contact is an addressable person, keyed by phone.
type Contact struct {
	PK        int64     `db:"pk_id"`
	FirstName string    `db:"first_name"`
	Phone     string    `db:"phone"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

// Group backs a campaign's membership.
type Group struct {
	PK         int64     `db:"pk_id"`
	Name       string    `db:"name"`
	IsCampaign bool      `db:"is_campaign"`
	UserID     int64     `db:"user_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// ContactGroup records a contact's membership in a group. The
// (contact, group) pair is unique.
type ContactGroup struct {
	ContactPK int64 `db:"contact_id"`
	GroupPK   int64 `db:"group_id"`
}

// OutgoingMessage is the reply ledger: one row per tagged outbound
// message, keyed by its correlation identifier.
type OutgoingMessage struct {
	ID        string    `db:"id"`
	To        string    `db:"to_jid"`
	SessionID string    `db:"session_id"`
	CreatedAt time.Time `db:"created_at"`
}

// InboundMessage is a normalized message-received event from the
// session layer.
type InboundMessage struct {
	SessionID string
	MessageID string
	From      string
	PushName  string
	Text      string
	Caption   string
	Timestamp time.Time
}

// Body returns the first non-empty text payload.
func (m *InboundMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}
