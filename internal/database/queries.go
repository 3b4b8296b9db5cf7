package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wacast/internal/models"
)

// Device operations

func (d *Database) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.Status == "" {
		device.Status = models.DeviceStatusClosed
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO devices (id, user_id, phone, status)
		VALUES (?, ?, ?, ?)
	`, device.ID, device.UserID, device.Phone, device.Status)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	device.PK, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}
	return nil
}

func (d *Database) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	device := &models.Device{}
	err := d.db.QueryRowContext(ctx, `
		SELECT pk_id, id, user_id, phone, status, created_at, updated_at
		FROM devices WHERE id = ?
	`, id).Scan(&device.PK, &device.ID, &device.UserID, &device.Phone, &device.Status,
		&device.CreatedAt, &device.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (d *Database) UpdateDeviceStatus(ctx context.Context, devicePK int64, status models.DeviceStatus) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			UPDATE devices SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE pk_id = ?
		`, status, devicePK)
		return err
	}, "update device status")
}

// Session credential operations. Credential blobs are encrypted at rest
// when a secret is configured.

func (d *Database) SaveSessionCredential(ctx context.Context, cred *models.SessionCredential) error {
	data, err := d.encryptor.EncryptIfEnabled(cred.Data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO sessions (session_id, id, data, device_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, id) DO UPDATE SET data = excluded.data
		`, cred.SessionID, cred.Key, data, cred.DevicePK)
		return err
	}, "save session credential")
}

// GetSessionCredential returns nil when no entry exists; a read miss is
// an expected condition during session bootstrap, not an error.
func (d *Database) GetSessionCredential(ctx context.Context, sessionID, key string) (*models.SessionCredential, error) {
	cred := &models.SessionCredential{SessionID: sessionID, Key: key}
	var data string
	err := d.db.QueryRowContext(ctx, `
		SELECT data, device_id FROM sessions WHERE session_id = ? AND id = ?
	`, sessionID, key).Scan(&data, &cred.DevicePK)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session credential: %w", err)
	}
	cred.Data, err = d.encryptor.DecryptIfEnabled(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return cred, nil
}

func (d *Database) DeleteSessionCredential(ctx context.Context, sessionID, key string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			DELETE FROM sessions WHERE session_id = ? AND id = ?
		`, sessionID, key)
		return err
	}, "delete session credential")
}

func (d *Database) DeleteSessionCredentials(ctx context.Context, sessionID string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			DELETE FROM sessions WHERE session_id = ?
		`, sessionID)
		return err
	}, "delete session credentials")
}

// SessionIDForDevice resolves the live session identifier linked to a
// device, or "" when the device has never linked one.
func (d *Database) SessionIDForDevice(ctx context.Context, devicePK int64) (string, error) {
	var sessionID string
	err := d.db.QueryRowContext(ctx, `
		SELECT session_id FROM sessions WHERE device_id = ? LIMIT 1
	`, devicePK).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve session for device: %w", err)
	}
	return sessionID, nil
}

// ListSessionBindings returns every persisted session and its device,
// used to rebuild the live registry on startup.
func (d *Database) ListSessionBindings(ctx context.Context) ([]models.SessionBinding, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT session_id, device_id FROM sessions ORDER BY session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list session bindings: %w", err)
	}
	defer rows.Close()

	var out []models.SessionBinding
	for rows.Next() {
		var b models.SessionBinding
		if err := rows.Scan(&b.SessionID, &b.DevicePK); err != nil {
			return nil, fmt.Errorf("failed to scan session binding: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Broadcast operations

func (d *Database) CreateBroadcast(ctx context.Context, b *models.Broadcast) error {
	recipients, err := json.Marshal(b.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO broadcasts (id, device_id, name, message, recipients, schedule, delay_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.DevicePK, b.Name, b.Message, string(recipients), b.Schedule, b.DelayMs)
	if err != nil {
		return fmt.Errorf("failed to create broadcast: %w", err)
	}
	b.PK, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get broadcast id: %w", err)
	}
	return nil
}

// DueBroadcasts returns unsent broadcasts scheduled at or before now,
// each annotated with its owning device's session identifier.
func (d *Database) DueBroadcasts(ctx context.Context, now time.Time) ([]models.Broadcast, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT b.pk_id, b.id, b.device_id, b.name, b.message, b.recipients,
		       b.schedule, b.delay_ms,
		       COALESCE((SELECT s.session_id FROM sessions s WHERE s.device_id = b.device_id LIMIT 1), '')
		FROM broadcasts b
		WHERE b.schedule <= ? AND b.is_sent = 0
		ORDER BY b.schedule, b.pk_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due broadcasts: %w", err)
	}
	defer rows.Close()

	var out []models.Broadcast
	for rows.Next() {
		var b models.Broadcast
		var recipients string
		if err := rows.Scan(&b.PK, &b.ID, &b.DevicePK, &b.Name, &b.Message, &recipients,
			&b.Schedule, &b.DelayMs, &b.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan broadcast: %w", err)
		}
		if err := json.Unmarshal([]byte(recipients), &b.Recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients for broadcast %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *Database) MarkBroadcastSent(ctx context.Context, pk int64, at time.Time) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			UPDATE broadcasts SET is_sent = 1, updated_at = ? WHERE pk_id = ?
		`, at, pk)
		return err
	}, "mark broadcast sent")
}

// Campaign operations

// CreateCampaign creates the campaign together with its backing contact
// group in one transaction.
func (d *Database) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	recipients, err := json.Marshal(c.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO groups (name, is_campaign, user_id) VALUES (?, 1, ?)
	`, c.Name, 0)
	if err != nil {
		return fmt.Errorf("failed to create campaign group: %w", err)
	}
	c.GroupPK, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get group id: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, device_id, group_id, name,
			syntax_registration, syntax_unregistration, registration_message,
			message_registered, message_failed, message_unregistered,
			recipients, delay_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.DevicePK, c.GroupPK, c.Name,
		c.SyntaxRegistration, c.SyntaxUnregistration, c.RegistrationMessage,
		c.MessageRegistered, c.MessageFailed, c.MessageUnregistered,
		string(recipients), c.DelayMs)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	c.PK, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get campaign id: %w", err)
	}

	return tx.Commit()
}

const campaignColumns = `c.pk_id, c.id, c.device_id, c.group_id, c.name,
	c.syntax_registration, c.syntax_unregistration, c.registration_message,
	c.message_registered, c.message_failed, c.message_unregistered,
	c.recipients, c.delay_ms, c.is_sent`

func scanCampaign(scan func(dest ...interface{}) error) (*models.Campaign, error) {
	c := &models.Campaign{}
	var recipients string
	err := scan(&c.PK, &c.ID, &c.DevicePK, &c.GroupPK, &c.Name,
		&c.SyntaxRegistration, &c.SyntaxUnregistration, &c.RegistrationMessage,
		&c.MessageRegistered, &c.MessageFailed, &c.MessageUnregistered,
		&recipients, &c.DelayMs, &c.IsSent)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recipients), &c.Recipients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients for campaign %s: %w", c.ID, err)
	}
	return c, nil
}

// UnsentCampaigns returns campaigns whose initial registration blast has
// not gone out yet.
func (d *Database) UnsentCampaigns(ctx context.Context) ([]models.Campaign, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`,
		       COALESCE((SELECT s.session_id FROM sessions s WHERE s.device_id = c.device_id LIMIT 1), '')
		FROM campaigns c
		WHERE c.is_sent = 0
		ORDER BY c.pk_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsent campaigns: %w", err)
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c := models.Campaign{}
		var recipients string
		if err := rows.Scan(&c.PK, &c.ID, &c.DevicePK, &c.GroupPK, &c.Name,
			&c.SyntaxRegistration, &c.SyntaxUnregistration, &c.RegistrationMessage,
			&c.MessageRegistered, &c.MessageFailed, &c.MessageUnregistered,
			&recipients, &c.DelayMs, &c.IsSent, &c.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		if err := json.Unmarshal([]byte(recipients), &c.Recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients for campaign %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *Database) MarkCampaignSent(ctx context.Context, pk int64, at time.Time) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			UPDATE campaigns SET is_sent = 1, updated_at = ? WHERE pk_id = ?
		`, at, pk)
		return err
	}, "mark campaign sent")
}

// FindCampaignsForReply returns every campaign owned by the receiving
// device whose registration or unregistration syntax equals the
// normalized text, case-insensitively, in creation order. The caller
// narrows by the per-campaign recipient allow-list; the list lives as
// a JSON column, so the match happens in Go rather than in SQL.
func (d *Database) FindCampaignsForReply(ctx context.Context, sessionID, text string) ([]models.Campaign, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns c
		WHERE c.device_id IN (SELECT s.device_id FROM sessions s WHERE s.session_id = ?)
		  AND (LOWER(c.syntax_registration) = LOWER(?)
		       OR (c.syntax_unregistration != '' AND LOWER(c.syntax_unregistration) = LOWER(?)))
		ORDER BY c.pk_id
	`, sessionID, text, text)
	if err != nil {
		return nil, fmt.Errorf("failed to find campaigns for reply: %w", err)
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign for reply: %w", err)
		}
		c.SessionID = sessionID
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Campaign message operations

func (d *Database) CreateCampaignMessage(ctx context.Context, m *models.CampaignMessage) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO campaign_messages (id, campaign_id, message, schedule, delay_ms)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, m.CampaignPK, m.Message, m.Schedule, m.DelayMs)
	if err != nil {
		return fmt.Errorf("failed to create campaign message: %w", err)
	}
	m.PK, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get campaign message id: %w", err)
	}
	return nil
}

// DueCampaignMessages returns unsent drip messages scheduled at or
// before now. Recipients are the backing group's current members, in
// registration order.
func (d *Database) DueCampaignMessages(ctx context.Context, now time.Time) ([]models.CampaignMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT m.pk_id, m.id, m.campaign_id, m.message, m.schedule, m.delay_ms,
		       COALESCE((SELECT s.session_id FROM sessions s
		                 JOIN campaigns c ON c.pk_id = m.campaign_id
		                 WHERE s.device_id = c.device_id LIMIT 1), '')
		FROM campaign_messages m
		WHERE m.schedule <= ? AND m.is_sent = 0
		ORDER BY m.schedule, m.pk_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due campaign messages: %w", err)
	}
	defer rows.Close()

	var out []models.CampaignMessage
	for rows.Next() {
		var m models.CampaignMessage
		if err := rows.Scan(&m.PK, &m.ID, &m.CampaignPK, &m.Message, &m.Schedule,
			&m.DelayMs, &m.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan campaign message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		recipients, err := d.campaignMemberPhones(ctx, out[i].CampaignPK)
		if err != nil {
			return nil, err
		}
		out[i].Recipients = recipients
	}
	return out, nil
}

func (d *Database) campaignMemberPhones(ctx context.Context, campaignPK int64) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT co.phone
		FROM contact_groups cg
		JOIN contacts co ON co.pk_id = cg.contact_id
		WHERE cg.group_id = (SELECT group_id FROM campaigns WHERE pk_id = ?)
		ORDER BY cg.rowid
	`, campaignPK)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign members: %w", err)
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var phone string
		if err := rows.Scan(&phone); err != nil {
			return nil, fmt.Errorf("failed to scan member phone: %w", err)
		}
		phones = append(phones, phone)
	}
	return phones, rows.Err()
}

func (d *Database) MarkCampaignMessageSent(ctx context.Context, pk int64, at time.Time) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			UPDATE campaign_messages SET is_sent = 1, updated_at = ? WHERE pk_id = ?
		`, at, pk)
		return err
	}, "mark campaign message sent")
}

// Membership operations

func (d *Database) IsGroupMember(ctx context.Context, groupPK int64, phone string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1
		FROM contact_groups cg
		JOIN contacts co ON co.pk_id = cg.contact_id
		WHERE cg.group_id = ? AND co.phone = ?
	`, groupPK, phone).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

// RegisterContact upserts the contact and creates the membership row as
// one atomic unit. Replaying it is a no-op.
func (d *Database) RegisterContact(ctx context.Context, groupPK int64, phone, firstName string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO contacts (first_name, phone) VALUES (?, ?)
		ON CONFLICT (phone) DO NOTHING
	`, firstName, phone); err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	var contactPK int64
	if err := tx.QueryRowContext(ctx, `
		SELECT pk_id FROM contacts WHERE phone = ?
	`, phone).Scan(&contactPK); err != nil {
		return fmt.Errorf("failed to resolve contact: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO contact_groups (contact_id, group_id) VALUES (?, ?)
	`, contactPK, groupPK); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	return tx.Commit()
}

// UnregisterContact deletes the membership row for the contact, if one
// exists. An unknown phone is a no-op.
func (d *Database) UnregisterContact(ctx context.Context, groupPK int64, phone string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var contactPK int64
	err = tx.QueryRowContext(ctx, `
		SELECT pk_id FROM contacts WHERE phone = ?
	`, phone).Scan(&contactPK)
	if err == sql.ErrNoRows {
		return tx.Commit()
	}
	if err != nil {
		return fmt.Errorf("failed to resolve contact: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM contact_groups WHERE contact_id = ? AND group_id = ?
	`, contactPK, groupPK); err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	return tx.Commit()
}

// Business hour operations

func (d *Database) CreateBusinessHour(ctx context.Context, bh *models.BusinessHour) error {
	if bh.TimeZone == "" {
		bh.TimeZone = "Etc/UTC"
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO business_hours (device_id, message, time_zone,
			mon_start, mon_end, tue_start, tue_end, wed_start, wed_end,
			thu_start, thu_end, fri_start, fri_end, sat_start, sat_end,
			sun_start, sun_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bh.DevicePK, bh.Message, bh.TimeZone,
		bh.MonStart, bh.MonEnd, bh.TueStart, bh.TueEnd, bh.WedStart, bh.WedEnd,
		bh.ThuStart, bh.ThuEnd, bh.FriStart, bh.FriEnd, bh.SatStart, bh.SatEnd,
		bh.SunStart, bh.SunEnd)
	if err != nil {
		return fmt.Errorf("failed to create business hours: %w", err)
	}
	bh.PK, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get business hours id: %w", err)
	}
	return nil
}

// GetBusinessHourForSession returns the first business-hour record of
// the session's device, or nil when none is configured.
func (d *Database) GetBusinessHourForSession(ctx context.Context, sessionID string) (*models.BusinessHour, error) {
	bh := &models.BusinessHour{}
	err := d.db.QueryRowContext(ctx, `
		SELECT b.pk_id, b.device_id, b.message, b.time_zone,
		       b.mon_start, b.mon_end, b.tue_start, b.tue_end,
		       b.wed_start, b.wed_end, b.thu_start, b.thu_end,
		       b.fri_start, b.fri_end, b.sat_start, b.sat_end,
		       b.sun_start, b.sun_end
		FROM business_hours b
		WHERE b.device_id IN (SELECT s.device_id FROM sessions s WHERE s.session_id = ?)
		ORDER BY b.pk_id
		LIMIT 1
	`, sessionID).Scan(&bh.PK, &bh.DevicePK, &bh.Message, &bh.TimeZone,
		&bh.MonStart, &bh.MonEnd, &bh.TueStart, &bh.TueEnd,
		&bh.WedStart, &bh.WedEnd, &bh.ThuStart, &bh.ThuEnd,
		&bh.FriStart, &bh.FriEnd, &bh.SatStart, &bh.SatEnd,
		&bh.SunStart, &bh.SunEnd)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business hours: %w", err)
	}
	return bh, nil
}

// Outgoing message ledger

func (d *Database) SaveOutgoingMessage(ctx context.Context, om *models.OutgoingMessage) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
			INSERT INTO outgoing_messages (id, to_jid, session_id) VALUES (?, ?, ?)
		`, om.ID, om.To, om.SessionID)
		return err
	}, "save outgoing message")
}

// HasOutgoingMessageWithPrefix reports whether a tagged outbound message
// whose correlation id starts with prefix was already recorded for the
// recipient on the session.
func (d *Database) HasOutgoingMessageWithPrefix(ctx context.Context, prefix, to, sessionID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, `
		SELECT 1 FROM outgoing_messages
		WHERE id LIKE ? || '%' AND to_jid = ? AND session_id = ?
		LIMIT 1
	`, prefix, to, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query outgoing messages: %w", err)
	}
	return true, nil
}
