package outbox

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "gqm/data/db"
	"gqm/data/db/basic"
	"gqm/logging"
	"gqm/manager"
	"gqm/notify"
)

type parcel struct {
	ID     int64
	Code   string `gqm:"unique"`
	Weight int
}

type senderFunc func(ctx context.Context, msg *notify.Message) error

func (f senderFunc) Publish(ctx context.Context, msg *notify.Message) error { return f(ctx, msg) }

func setup(t *testing.T) (*Outbox, *manager.Manager[parcel]) {
	t.Helper()
	ctx := context.Background()
	db, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ob, err := New(db, WithLogger(logging.NewNoopLogger()), WithKinds(manager.EventInserted, manager.EventUpdated))
	require.NoError(t, err)
	require.NoError(t, ob.Install(ctx))

	reg, err := manager.NewRegistry(db, manager.WithLogger(logging.NewNoopLogger()), manager.WithEventListener(ob))
	require.NoError(t, err)
	parcels, err := manager.Of[parcel](reg)
	require.NoError(t, err)
	require.NoError(t, parcels.Install(ctx))
	return ob, parcels
}

func TestOutbox_FollowsTransaction(t *testing.T) {
	ctx := context.Background()
	ob, parcels := setup(t)

	_, err := parcels.Save(ctx, &parcel{Code: "P-1", Weight: 3})
	require.NoError(t, err)

	// 违反唯一约束的插入回滚，发件箱记录随之撤销
	_, err = parcels.Insert(ctx, &parcel{Code: "P-1"})
	require.Error(t, err)

	entries, err := ob.Pending(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "parcel.inserted", entries[0].Subject)
	assert.Equal(t, StatusPending, entries[0].Status)

	msg, err := entries[0].Message()
	require.NoError(t, err)
	assert.Equal(t, "parcel", msg.Table)
	assert.Equal(t, int64(1), msg.BeanID)
}

func TestRelay_PublishesAndRetries(t *testing.T) {
	ctx := context.Background()
	ob, parcels := setup(t)

	p := &parcel{Code: "P-2"}
	_, err := parcels.Save(ctx, p)
	require.NoError(t, err)
	p.Weight = 9
	_, err = parcels.Save(ctx, p)
	require.NoError(t, err)

	var sent []string
	fail := true
	relay := NewRelay(ob, senderFunc(func(_ context.Context, msg *notify.Message) error {
		if fail && msg.Kind == "updated" {
			return stdErrors.New("broker down")
		}
		sent = append(sent, msg.Subject())
		return nil
	}), RelayConfig{RetryInterval: time.Millisecond})

	n, err := relay.PublishPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"parcel.inserted"}, sent)

	// 失败记录在重试时间之前不会再被取出
	ob.now = func() time.Time { return time.Now().Add(-time.Hour) }
	entries, err := ob.Pending(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ob.now = time.Now
	time.Sleep(5 * time.Millisecond)
	fail = false
	n, err = relay.PublishPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"parcel.inserted", "parcel.updated"}, sent)

	deleted, err := ob.DeletePublished(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestRelay_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	ob, parcels := setup(t)
	_, err := parcels.Save(ctx, &parcel{Code: "P-3"})
	require.NoError(t, err)

	calls := 0
	relay := NewRelay(ob, senderFunc(func(context.Context, *notify.Message) error {
		calls++
		return stdErrors.New("broker down")
	}), RelayConfig{MaxRetries: 2, RetryInterval: time.Nanosecond})

	for i := 0; i < 4; i++ {
		_, err := relay.PublishPending(ctx)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 2, calls)
}

func TestRelay_StartStop(t *testing.T) {
	ctx := context.Background()
	ob, parcels := setup(t)
	_, err := parcels.Save(ctx, &parcel{Code: "P-4"})
	require.NoError(t, err)

	got := make(chan *notify.Message, 1)
	relay := NewRelay(ob, senderFunc(func(_ context.Context, msg *notify.Message) error {
		got <- msg
		return nil
	}), RelayConfig{Interval: 5 * time.Millisecond})
	relay.Start(ctx)
	relay.Start(ctx)

	select {
	case msg := <-got:
		assert.Equal(t, "parcel.inserted", msg.Subject())
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not publish")
	}
	relay.Stop()
	relay.Stop()
}

func TestEntry_NextRetry(t *testing.T) {
	now := time.Unix(1000, 0)
	e := Entry{RetryCount: 2}
	assert.Equal(t, now.Add(4*time.Second), e.NextRetry(now, time.Second))
	e.RetryCount = 10
	assert.Equal(t, now.Add(32*time.Second), e.NextRetry(now, time.Second))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
