package service

import (
	"context"
	"testing"

	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		name             string
		wantToUnregister bool
		isMember         bool
		expected         ReplyKind
	}{
		{"register new sender", false, false, ReplyRegistered},
		{"register existing member", false, true, ReplyAlreadyMember},
		{"unregister member", true, true, ReplyUnregistered},
		{"unregister non-member", true, false, ReplyNotRegistered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyReply(tt.wantToUnregister, tt.isMember))
		})
	}
}

func testCampaign() *models.Campaign {
	return &models.Campaign{
		PK:                   7,
		ID:                   "camp-1",
		GroupPK:              3,
		Name:                 "Summer Sale",
		SyntaxRegistration:   "JOIN",
		SyntaxUnregistration: "LEAVE",
		MessageRegistered:    "Welcome {{name}}!",
		MessageFailed:        "You are already in.",
		MessageUnregistered:  "Goodbye {{name}}.",
		Recipients:           []string{models.RecipientWildcard},
	}
}

func inbound(text string) *models.InboundMessage {
	return &models.InboundMessage{
		SessionID: "session-a",
		MessageID: "in-1",
		From:      "628111@s.whatsapp.net",
		PushName:  "Ada",
		Text:      text,
	}
}

func newReplyHarness(t *testing.T, campaign *models.Campaign) (*CampaignReplyHandler, *fakeCampaignStore, *mockGatewayClient) {
	t.Helper()
	store := newFakeCampaignStore(campaign)
	gateway := &mockGatewayClient{}
	registry := testRegistry(gateway)
	registry.Register("session-a", 1)
	return NewCampaignReplyHandler(store, registry, testLogger()), store, gateway
}

func TestCampaignReplyRegistration(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	gateway.On("MarkSeen", mock.Anything, "session-a", "628111@s.whatsapp.net", []string{"in-1"}).Return(nil)
	gateway.On("SendText", mock.Anything, "session-a", "628111@s.whatsapp.net", "Welcome Ada!", mock.Anything).
		Return(&types.SendMessageResponse{MessageID: "m-1"}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("JOIN"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"628111"}, store.registered)
	gateway.AssertExpectations(t)

	require.Len(t, store.outgoing, 1)
	assert.Contains(t, store.outgoing[0].ID, "CMP_7_")
	assert.Equal(t, "628111@s.whatsapp.net", store.outgoing[0].To)
}

func TestCampaignReplyCaseInsensitive(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("  join "))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"628111"}, store.registered)
}

func TestCampaignReplyAlreadyMember(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	store.members["628111"] = true
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, "session-a", "628111@s.whatsapp.net", "You are already in.", mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("JOIN"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, store.registered)
	assert.True(t, store.members["628111"])
	gateway.AssertExpectations(t)
}

func TestCampaignReplyUnregistration(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	store.members["628111"] = true
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, "session-a", "628111@s.whatsapp.net", "Goodbye Ada.", mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("LEAVE"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"628111"}, store.unregistered)
	assert.False(t, store.members["628111"])
}

func TestCampaignReplyUnregisterNonMember(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, "session-a", "628111@s.whatsapp.net",
		"You are not registered yet. Send JOIN first.", mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("LEAVE"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, store.registered)
	assert.Empty(t, store.unregistered)
	gateway.AssertExpectations(t)
}

func TestCampaignReplyAllowListExcludedSenderPassesThrough(t *testing.T) {
	campaign := testCampaign()
	campaign.Recipients = []string{"628999"}
	handler, store, _ := newReplyHarness(t, campaign)

	handled, err := handler.HandleInbound(context.Background(), inbound("JOIN"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, store.registered)
	assert.Empty(t, store.outgoing)
}

func TestCampaignReplyAllowListSelectsAmongCandidates(t *testing.T) {
	restricted := testCampaign()
	restricted.Recipients = []string{"628999"}
	open := testCampaign()
	open.PK = 8
	open.ID = "camp-2"
	open.GroupPK = 4
	open.MessageRegistered = "Welcome to the open program, {{name}}!"

	store := newFakeCampaignStore(restricted, open)
	gateway := &mockGatewayClient{}
	registry := testRegistry(gateway)
	registry.Register("session-a", 1)
	handler := NewCampaignReplyHandler(store, registry, testLogger())

	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, "session-a", "628111@s.whatsapp.net",
		"Welcome to the open program, Ada!", mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("JOIN"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"628111"}, store.registered)
	gateway.AssertExpectations(t)

	require.Len(t, store.outgoing, 1)
	assert.Contains(t, store.outgoing[0].ID, "CMP_8_")
}

func TestCampaignReplyNoMatchPassesThrough(t *testing.T) {
	handler, store, _ := newReplyHarness(t, testCampaign())

	handled, err := handler.HandleInbound(context.Background(), inbound("hello there"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, store.registered)
}

func TestCampaignReplyEmptyBodyIgnored(t *testing.T) {
	handler, _, _ := newReplyHarness(t, testCampaign())

	handled, err := handler.HandleInbound(context.Background(), inbound("   "))
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestCampaignReplyCaptionFallback(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	msg := inbound("")
	msg.Caption = "JOIN"
	handled, err := handler.HandleInbound(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"628111"}, store.registered)
}

func TestCampaignReplyMutationAppliesWhenSendFails(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	handled, err := handler.HandleInbound(context.Background(), inbound("JOIN"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"628111"}, store.registered)
	assert.Empty(t, store.outgoing)
}

func TestCampaignReplyStoreErrorPropagates(t *testing.T) {
	handler, store, gateway := newReplyHarness(t, testCampaign())
	store.registerErr = assert.AnError
	gateway.On("MarkSeen", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gateway.On("SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	handled, err := handler.HandleInbound(context.Background(), inbound("JOIN"))
	assert.True(t, handled)
	assert.Error(t, err)
}

func TestPhoneFromJID(t *testing.T) {
	assert.Equal(t, "628111", PhoneFromJID("628111@s.whatsapp.net"))
	assert.Equal(t, "628111", PhoneFromJID("628111"))
	assert.Equal(t, "123-456", PhoneFromJID("123-456@g.us"))
}
