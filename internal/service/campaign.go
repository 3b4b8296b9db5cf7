package service

import (
	"context"
	"fmt"
	"strings"

	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// ReplyKind is the outcome of classifying a campaign reply.
type ReplyKind int

const (
	// ReplyRegistered: a registration request from a non-member.
	ReplyRegistered ReplyKind = iota
	// ReplyAlreadyMember: a registration request from an existing member.
	ReplyAlreadyMember
	// ReplyUnregistered: an unregistration request from a member.
	ReplyUnregistered
	// ReplyNotRegistered: an unregistration request from a non-member.
	ReplyNotRegistered
)

// ClassifyReply maps a sender's intent and current membership onto the
// reply to send. Pure; the caller applies the matching mutation.
func ClassifyReply(wantToUnregister, isMember bool) ReplyKind {
	switch {
	case wantToUnregister && isMember:
		return ReplyUnregistered
	case wantToUnregister && !isMember:
		return ReplyNotRegistered
	case isMember:
		return ReplyAlreadyMember
	default:
		return ReplyRegistered
	}
}

// mutates reports whether the outcome changes membership.
func (k ReplyKind) mutates() bool {
	return k == ReplyRegistered || k == ReplyUnregistered
}

// CampaignStore is the persistence surface of the reply handler.
type CampaignStore interface {
	FindCampaignsForReply(ctx context.Context, sessionID, text string) ([]models.Campaign, error)
	IsGroupMember(ctx context.Context, groupPK int64, phone string) (bool, error)
	RegisterContact(ctx context.Context, groupPK int64, phone, firstName string) error
	UnregisterContact(ctx context.Context, groupPK int64, phone string) error
	SaveOutgoingMessage(ctx context.Context, om *models.OutgoingMessage) error
}

// CampaignReplyHandler turns inbound registration/unregistration
// keywords into membership changes plus a confirmation reply.
type CampaignReplyHandler struct {
	store    CampaignStore
	registry *Registry
	logger   *logrus.Logger
}

func NewCampaignReplyHandler(store CampaignStore, registry *Registry, logger *logrus.Logger) *CampaignReplyHandler {
	return &CampaignReplyHandler{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// HandleInbound processes one inbound message. It reports whether a
// campaign consumed the message; false hands the message on to the next
// handler in the chain.
//
// The confirmation reply goes out before the membership mutation is
// committed. A crash between the two leaves the sender confirmed but
// unchanged; the sender resolves it by repeating the keyword, which
// replays as a no-op once the mutation has landed.
func (h *CampaignReplyHandler) HandleInbound(ctx context.Context, msg *models.InboundMessage) (bool, error) {
	text := strings.TrimSpace(msg.Body())
	if text == "" {
		return false, nil
	}

	candidates, err := h.store.FindCampaignsForReply(ctx, msg.SessionID, text)
	if err != nil {
		return false, err
	}

	// A campaign is a candidate only if its allow-list admits the
	// sender; a message no campaign admits falls through to the next
	// handler.
	phone := PhoneFromJID(msg.From)
	var campaign *models.Campaign
	for i := range candidates {
		if candidates[i].AllowsSender(phone) {
			campaign = &candidates[i]
			break
		}
	}
	if campaign == nil {
		return false, nil
	}

	log := h.logger.WithFields(logrus.Fields{
		"campaign": campaign.ID,
		"session":  msg.SessionID,
		"from":     msg.From,
	})

	wantToUnregister := campaign.SyntaxUnregistration != "" &&
		strings.EqualFold(text, campaign.SyntaxUnregistration)

	isMember, err := h.store.IsGroupMember(ctx, campaign.GroupPK, phone)
	if err != nil {
		return true, err
	}

	kind := ClassifyReply(wantToUnregister, isMember)
	h.reply(ctx, campaign, msg, kind, log)

	if kind.mutates() {
		if wantToUnregister {
			err = h.store.UnregisterContact(ctx, campaign.GroupPK, phone)
		} else {
			err = h.store.RegisterContact(ctx, campaign.GroupPK, phone, msg.PushName)
		}
		if err != nil {
			return true, err
		}
		log.WithField("unregister", wantToUnregister).Info("Campaign membership updated")
	}
	return true, nil
}

// reply sends the confirmation and records it in the outgoing ledger.
// Best-effort: a failed reply is logged, the membership change still
// applies.
func (h *CampaignReplyHandler) reply(ctx context.Context, campaign *models.Campaign, msg *models.InboundMessage, kind ReplyKind, log *logrus.Entry) {
	handle, err := h.registry.Lookup(msg.SessionID)
	if err != nil {
		log.WithError(err).Warn("No live session for campaign reply")
		return
	}

	if err := handle.MarkRead(ctx, msg.From, []string{msg.MessageID}); err != nil {
		log.WithError(err).Debug("Failed to mark message read")
	}

	vars := map[string]string{
		"name":     senderName(msg),
		"campaign": campaign.Name,
		"syntax":   campaign.SyntaxRegistration,
	}
	body := RenderTemplate(h.replyTemplate(campaign, kind), vars)
	if body == "" {
		return
	}

	corrID := CampaignCorrelationID(campaign.PK)
	if _, err := handle.Send(ctx, msg.From, body, &types.SendOptions{MessageID: corrID}); err != nil {
		log.WithError(err).Error("Failed to send campaign reply")
		return
	}
	if err := h.store.SaveOutgoingMessage(ctx, &models.OutgoingMessage{
		ID:        corrID,
		To:        msg.From,
		SessionID: msg.SessionID,
	}); err != nil {
		log.WithError(err).Warn("Failed to record campaign reply")
	}
}

func (h *CampaignReplyHandler) replyTemplate(campaign *models.Campaign, kind ReplyKind) string {
	switch kind {
	case ReplyRegistered:
		return campaign.MessageRegistered
	case ReplyAlreadyMember:
		return campaign.MessageFailed
	case ReplyUnregistered:
		return campaign.MessageUnregistered
	default:
		return fmt.Sprintf("You are not registered yet. Send %s first.", campaign.SyntaxRegistration)
	}
}

// CampaignCorrelationID tags a campaign reply so later scans can tell
// which campaign produced an outbound message.
func CampaignCorrelationID(campaignPK int64) string {
	return fmt.Sprintf("CMP_%d_%s", campaignPK, ulid.Make().String())
}

// PhoneFromJID strips the channel addressing suffix off a sender jid.
func PhoneFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

func senderName(msg *models.InboundMessage) string {
	if msg.PushName != "" {
		return msg.PushName
	}
	return PhoneFromJID(msg.From)
}
