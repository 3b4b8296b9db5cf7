package service

import (
	"context"
	"strings"
	"time"

	"wacast/internal/models"
	"wacast/pkg/wagateway/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type mockGatewayClient struct {
	mock.Mock
}

func (m *mockGatewayClient) SendText(ctx context.Context, session, chatID, text string, opts *types.SendOptions) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, session, chatID, text, opts)
	if resp := args.Get(0); resp != nil {
		return resp.(*types.SendMessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGatewayClient) MarkSeen(ctx context.Context, session, chatID string, messageIDs []string) error {
	args := m.Called(ctx, session, chatID, messageIDs)
	return args.Error(0)
}

func (m *mockGatewayClient) SessionStatus(ctx context.Context, session string) (*types.Session, error) {
	args := m.Called(ctx, session)
	if s := args.Get(0); s != nil {
		return s.(*types.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGatewayClient) StartSession(ctx context.Context, session string) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockGatewayClient) StopSession(ctx context.Context, session string) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

type mockCredentialStore struct {
	mock.Mock
}

func (m *mockCredentialStore) SaveSessionCredential(ctx context.Context, cred *models.SessionCredential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *mockCredentialStore) GetSessionCredential(ctx context.Context, sessionID, key string) (*models.SessionCredential, error) {
	args := m.Called(ctx, sessionID, key)
	if c := args.Get(0); c != nil {
		return c.(*models.SessionCredential), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCredentialStore) DeleteSessionCredential(ctx context.Context, sessionID, key string) error {
	args := m.Called(ctx, sessionID, key)
	return args.Error(0)
}

func (m *mockCredentialStore) DeleteSessionCredentials(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// fakeDispatchStore is an in-memory DispatchStore tracking which jobs
// got their sent flag persisted.
type fakeDispatchStore struct {
	broadcasts       []models.Broadcast
	campaigns        []models.Campaign
	campaignMessages []models.CampaignMessage

	sentBroadcasts       map[int64]bool
	sentCampaigns        map[int64]bool
	sentCampaignMessages map[int64]bool

	markErr error
}

func newFakeDispatchStore() *fakeDispatchStore {
	return &fakeDispatchStore{
		sentBroadcasts:       make(map[int64]bool),
		sentCampaigns:        make(map[int64]bool),
		sentCampaignMessages: make(map[int64]bool),
	}
}

func (f *fakeDispatchStore) DueBroadcasts(ctx context.Context, now time.Time) ([]models.Broadcast, error) {
	var due []models.Broadcast
	for _, b := range f.broadcasts {
		if !f.sentBroadcasts[b.PK] && !b.Schedule.After(now) {
			due = append(due, b)
		}
	}
	return due, nil
}

func (f *fakeDispatchStore) MarkBroadcastSent(ctx context.Context, pk int64, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.sentBroadcasts[pk] = true
	return nil
}

func (f *fakeDispatchStore) UnsentCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var due []models.Campaign
	for _, c := range f.campaigns {
		if !f.sentCampaigns[c.PK] {
			due = append(due, c)
		}
	}
	return due, nil
}

func (f *fakeDispatchStore) MarkCampaignSent(ctx context.Context, pk int64, at time.Time) error {
	f.sentCampaigns[pk] = true
	return nil
}

func (f *fakeDispatchStore) DueCampaignMessages(ctx context.Context, now time.Time) ([]models.CampaignMessage, error) {
	var due []models.CampaignMessage
	for _, m := range f.campaignMessages {
		if !f.sentCampaignMessages[m.PK] && !m.Schedule.After(now) {
			due = append(due, m)
		}
	}
	return due, nil
}

func (f *fakeDispatchStore) MarkCampaignMessageSent(ctx context.Context, pk int64, at time.Time) error {
	f.sentCampaignMessages[pk] = true
	return nil
}

// fakeCampaignStore backs the reply handler tests.
type fakeCampaignStore struct {
	campaigns []models.Campaign
	findErr   error

	members map[string]bool

	registered   []string
	unregistered []string
	outgoing     []models.OutgoingMessage

	registerErr   error
	unregisterErr error
}

func newFakeCampaignStore(campaigns ...*models.Campaign) *fakeCampaignStore {
	f := &fakeCampaignStore{members: make(map[string]bool)}
	for _, c := range campaigns {
		if c != nil {
			f.campaigns = append(f.campaigns, *c)
		}
	}
	return f
}

func (f *fakeCampaignStore) FindCampaignsForReply(ctx context.Context, sessionID, text string) ([]models.Campaign, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []models.Campaign
	for _, c := range f.campaigns {
		if strings.EqualFold(text, c.SyntaxRegistration) ||
			(c.SyntaxUnregistration != "" && strings.EqualFold(text, c.SyntaxUnregistration)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) IsGroupMember(ctx context.Context, groupPK int64, phone string) (bool, error) {
	return f.members[phone], nil
}

func (f *fakeCampaignStore) RegisterContact(ctx context.Context, groupPK int64, phone, firstName string) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	f.members[phone] = true
	f.registered = append(f.registered, phone)
	return nil
}

func (f *fakeCampaignStore) UnregisterContact(ctx context.Context, groupPK int64, phone string) error {
	if f.unregisterErr != nil {
		return f.unregisterErr
	}
	delete(f.members, phone)
	f.unregistered = append(f.unregistered, phone)
	return nil
}

func (f *fakeCampaignStore) SaveOutgoingMessage(ctx context.Context, om *models.OutgoingMessage) error {
	f.outgoing = append(f.outgoing, *om)
	return nil
}

// fakeGateStore backs the business-hour gate tests.
type fakeGateStore struct {
	record   *models.BusinessHour
	sent     map[string]bool
	outgoing []models.OutgoingMessage
}

func newFakeGateStore(record *models.BusinessHour) *fakeGateStore {
	return &fakeGateStore{
		record: record,
		sent:   make(map[string]bool),
	}
}

func (f *fakeGateStore) GetBusinessHourForSession(ctx context.Context, sessionID string) (*models.BusinessHour, error) {
	return f.record, nil
}

func (f *fakeGateStore) HasOutgoingMessageWithPrefix(ctx context.Context, prefix, to, sessionID string) (bool, error) {
	return f.sent[prefix+"|"+to+"|"+sessionID], nil
}

func (f *fakeGateStore) SaveOutgoingMessage(ctx context.Context, om *models.OutgoingMessage) error {
	f.outgoing = append(f.outgoing, *om)
	return nil
}

func (f *fakeGateStore) markNoticeSent(recordPK int64, to, sessionID string) {
	f.sent[businessHourPrefix(recordPK)+"|"+to+"|"+sessionID] = true
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testRegistry(gateway types.GatewayClient) *Registry {
	return NewRegistry(gateway, nil, models.GatewayConfig{
		SendsPerSecond: 1000,
		SendBurst:      1000,
	}, testLogger())
}
