package service

import (
	"context"
	"testing"
	"time"

	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newDispatchHarness(store *fakeDispatchStore, gateway *mockGatewayClient) (*Dispatcher, *DedupLedger) {
	registry := testRegistry(gateway)
	registry.Register("session-a", 1)
	ledger := NewDedupLedger()
	d := NewDispatcher(store, registry, ledger, models.DispatchConfig{DefaultDelayMs: 1}, testLogger())
	return d, ledger
}

func pastBroadcast(pk int64, id string, recipients ...string) models.Broadcast {
	return models.Broadcast{
		PK:         pk,
		ID:         id,
		SessionID:  "session-a",
		Message:    "hello world",
		Recipients: recipients,
		Schedule:   time.Now().Add(-time.Minute),
		DelayMs:    1,
	}
}

func TestDispatchBroadcastSendsInStoredOrder(t *testing.T) {
	store := newFakeDispatchStore()
	store.broadcasts = []models.Broadcast{pastBroadcast(1, "b-1", "6281", "6282", "6283")}

	var order []string
	gateway := &mockGatewayClient{}
	gateway.On("SendText", mock.Anything, "session-a", mock.Anything, "hello world", mock.Anything).
		Run(func(args mock.Arguments) {
			order = append(order, args.String(2))
		}).
		Return(&types.SendMessageResponse{}, nil)

	dispatcher, ledger := newDispatchHarness(store, gateway)
	dispatcher.RunPass(context.Background())

	assert.Equal(t, []string{
		"6281@s.whatsapp.net",
		"6282@s.whatsapp.net",
		"6283@s.whatsapp.net",
	}, order)
	assert.True(t, store.sentBroadcasts[1])
	assert.Equal(t, 0, ledger.Size())
}

func TestDispatchFutureBroadcastNotSelected(t *testing.T) {
	store := newFakeDispatchStore()
	b := pastBroadcast(1, "b-1", "6281")
	b.Schedule = time.Now().Add(time.Hour)
	store.broadcasts = []models.Broadcast{b}

	gateway := &mockGatewayClient{}
	dispatcher, _ := newDispatchHarness(store, gateway)
	dispatcher.RunPass(context.Background())

	assert.False(t, store.sentBroadcasts[1])
	gateway.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchOfflineSessionLeavesJobDue(t *testing.T) {
	store := newFakeDispatchStore()
	b := pastBroadcast(1, "b-1", "6281")
	b.SessionID = "session-offline"
	store.broadcasts = []models.Broadcast{b}

	gateway := &mockGatewayClient{}
	dispatcher, _ := newDispatchHarness(store, gateway)
	dispatcher.RunPass(context.Background())

	assert.False(t, store.sentBroadcasts[1])
	gateway.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchUnlinkedJobSkipped(t *testing.T) {
	store := newFakeDispatchStore()
	b := pastBroadcast(1, "b-1", "6281")
	b.SessionID = ""
	store.broadcasts = []models.Broadcast{b}

	dispatcher, _ := newDispatchHarness(store, &mockGatewayClient{})
	dispatcher.RunPass(context.Background())

	assert.False(t, store.sentBroadcasts[1])
}

func TestDispatchNoDoubleSendWhenJobStaysDue(t *testing.T) {
	store := newFakeDispatchStore()
	store.broadcasts = []models.Broadcast{pastBroadcast(1, "b-1", "6281", "6282")}
	store.markErr = assert.AnError

	sends := make(map[string]int)
	gateway := &mockGatewayClient{}
	gateway.On("SendText", mock.Anything, "session-a", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sends[args.String(2)]++
		}).
		Return(&types.SendMessageResponse{}, nil)

	dispatcher, ledger := newDispatchHarness(store, gateway)

	// Sent-flag persistence fails, so the job is selected again next
	// pass; the ledger must keep it from re-sending.
	dispatcher.RunPass(context.Background())
	assert.False(t, store.sentBroadcasts[1])
	assert.Equal(t, 1, ledger.Size())

	store.markErr = nil
	dispatcher.RunPass(context.Background())

	assert.True(t, store.sentBroadcasts[1])
	assert.Equal(t, 1, sends["6281@s.whatsapp.net"])
	assert.Equal(t, 1, sends["6282@s.whatsapp.net"])
	assert.Equal(t, 0, ledger.Size())
}

func TestDispatchSendFailureContinuesWithRemaining(t *testing.T) {
	store := newFakeDispatchStore()
	store.broadcasts = []models.Broadcast{pastBroadcast(1, "b-1", "6281", "6282", "6283")}

	gateway := &mockGatewayClient{}
	gateway.On("SendText", mock.Anything, "session-a", "6282@s.whatsapp.net", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)
	gateway.On("SendText", mock.Anything, "session-a", mock.Anything, mock.Anything, mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	dispatcher, _ := newDispatchHarness(store, gateway)
	dispatcher.RunPass(context.Background())

	assert.True(t, store.sentBroadcasts[1])
	gateway.AssertNumberOfCalls(t, "SendText", 3)
}

func TestDispatchCampaignBlast(t *testing.T) {
	store := newFakeDispatchStore()
	store.campaigns = []models.Campaign{{
		PK:                  5,
		ID:                  "camp-1",
		SessionID:           "session-a",
		RegistrationMessage: "Join our program, reply",
		SyntaxRegistration:  "JOIN",
		Recipients:          []string{models.RecipientWildcard, "6281"},
		DelayMs:             1,
	}}

	gateway := &mockGatewayClient{}
	gateway.On("SendText", mock.Anything, "session-a", "6281@s.whatsapp.net",
		"Join our program, reply JOIN", mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	dispatcher, _ := newDispatchHarness(store, gateway)
	dispatcher.RunPass(context.Background())

	assert.True(t, store.sentCampaigns[5])
	gateway.AssertExpectations(t)
	gateway.AssertNumberOfCalls(t, "SendText", 1)
}

func TestDispatchCampaignMessage(t *testing.T) {
	store := newFakeDispatchStore()
	store.campaignMessages = []models.CampaignMessage{{
		PK:         9,
		ID:         "cm-1",
		SessionID:  "session-a",
		Message:    "Week two update",
		Recipients: []string{"6281", "6282"},
		Schedule:   time.Now().Add(-time.Minute),
		DelayMs:    1,
	}}

	gateway := &mockGatewayClient{}
	gateway.On("SendText", mock.Anything, "session-a", mock.Anything, "Week two update", mock.Anything).
		Return(&types.SendMessageResponse{}, nil)

	dispatcher, _ := newDispatchHarness(store, gateway)
	dispatcher.RunPass(context.Background())

	assert.True(t, store.sentCampaignMessages[9])
	gateway.AssertNumberOfCalls(t, "SendText", 2)
}

func TestDispatchCancelledContextLeavesJobDue(t *testing.T) {
	store := newFakeDispatchStore()
	b := pastBroadcast(1, "b-1", "6281", "6282")
	b.DelayMs = int64(time.Hour / time.Millisecond)
	store.broadcasts = []models.Broadcast{b}

	ctx, cancel := context.WithCancel(context.Background())
	gateway := &mockGatewayClient{}
	gateway.On("SendText", mock.Anything, "session-a", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&types.SendMessageResponse{}, nil)

	dispatcher, ledger := newDispatchHarness(store, gateway)
	dispatcher.RunPass(ctx)

	// First recipient went out, then the pace wait was cancelled.
	gateway.AssertNumberOfCalls(t, "SendText", 1)
	assert.False(t, store.sentBroadcasts[1])
	assert.True(t, ledger.AlreadyProcessed(JobKey("broadcast", "b-1"), "6281"))
}

func TestDispatcherStartRejectsBadSpec(t *testing.T) {
	dispatcher, _ := newDispatchHarness(newFakeDispatchStore(), &mockGatewayClient{})
	err := dispatcher.Start(context.Background(), "not a cron spec")
	require.Error(t, err)
}

func TestDispatcherStartAndStop(t *testing.T) {
	dispatcher, _ := newDispatchHarness(newFakeDispatchStore(), &mockGatewayClient{})
	require.NoError(t, dispatcher.Start(context.Background(), "@every 1h"))
	assert.Error(t, dispatcher.Start(context.Background(), "@every 1h"))
	dispatcher.Stop()
}
