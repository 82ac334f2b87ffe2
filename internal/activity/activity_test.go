package activity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/repository"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(tenant, lead uuid.UUID) events.LeadHeader {
	return events.NewLeadHeader(tenant, uuid.New(), lead, uuid.New())
}

func TestEntryTypes(t *testing.T) {
	tenant, lead, stage := uuid.New(), uuid.New(), uuid.New()
	cases := []struct {
		event events.Event
		want  domain.ActivityType
	}{
		{events.LeadCreated{LeadHeader: header(tenant, lead), StageID: stage}, domain.ActivityCreated},
		{events.LeadMoved{LeadHeader: header(tenant, lead), FromStageID: stage, ToStageID: uuid.New()}, domain.ActivityStageChange},
		{events.LeadMoved{LeadHeader: header(tenant, lead), FromStageID: stage, ToStageID: stage}, domain.ActivityReorder},
		{events.LeadWon{LeadHeader: header(tenant, lead), ActualValue: "10.00"}, domain.ActivityWon},
		{events.LeadLost{LeadHeader: header(tenant, lead), Reason: "price"}, domain.ActivityLost},
		{events.LeadUpdated{LeadHeader: header(tenant, lead), Fields: []string{"title"}}, domain.ActivityUpdated},
		{events.LeadDeleted{LeadHeader: header(tenant, lead)}, domain.ActivityDeleted},
	}
	for _, tc := range cases {
		entry, ok := Entry(tc.event)
		require.True(t, ok, tc.event.EventName())
		assert.Equal(t, tc.want, entry.Type)
		assert.Equal(t, lead, entry.LeadID)
		assert.Equal(t, tenant, entry.TenantID)
		assert.NotNil(t, entry.ActorID)
		assert.NotEmpty(t, entry.Title)
		assert.Equal(t, tc.event.EventID(), entry.ID)
	}

	_, ok := Entry(events.StagePositionsRenumbered{TenantID: tenant})
	assert.False(t, ok)

	// Contact entries are stored by the ledger before the event fires.
	_, ok = Entry(events.LeadContacted{LeadHeader: header(tenant, lead), ActivityID: uuid.New()})
	assert.False(t, ok)
}

func TestRecorderWritesOneEntryPerEvent(t *testing.T) {
	store := repository.NewMemory()
	bus := events.NewInMemoryBus(logger.Nop())
	NewRecorder(store, logger.Nop()).Subscribe(bus)

	tenant, lead := uuid.New(), uuid.New()
	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, events.LeadCreated{LeadHeader: header(tenant, lead)}))
	require.NoError(t, bus.PublishSync(ctx, events.LeadLost{LeadHeader: header(tenant, lead), Reason: "timing"}))

	entries, err := store.ListActivities(ctx, tenant, lead, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActivityLost, entries[0].Type)
	assert.Equal(t, "timing", entries[0].Metadata["reason"])
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisherRoutesByEventName(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "pipeline.events", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"pipeline.events:topic"}, ch.declared)

	tenant := uuid.New()
	ev := events.LeadWon{LeadHeader: header(tenant, uuid.New()), ActualValue: "1200.00"}
	require.NoError(t, p.Handle(context.Background(), ev))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, events.NameLeadWon, ch.keys[0])
	assert.Equal(t, tenant.String(), msg.Headers["tenant-id"])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, ev.EventID().String(), msg.MessageId)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "1200.00", body["actualValue"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
	assert.Error(t, p.Handle(context.Background(), ev))
}

func TestPublisherSurfacesBrokerErrors(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := NewPublisher(ch, "pipeline.events", logger.Nop())
	require.NoError(t, err)

	err = p.Handle(context.Background(), events.LeadDeleted{LeadHeader: header(uuid.New(), uuid.New())})
	assert.ErrorIs(t, err, ch.publishErr)

	_, err = NewPublisher(&fakeChannel{}, "", logger.Nop())
	assert.Error(t, err)
}
