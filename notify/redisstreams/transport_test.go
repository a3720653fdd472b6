package redisstreams

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqm/errors"
	"gqm/logging"
	"gqm/notify"
)

// fakeClient 在内存中记录 XADD，XREADGROUP 依次返回 XADD 写入的记录
type fakeClient struct {
	mu      sync.Mutex
	added   []*redis.XAddArgs
	pending []redis.XStream
	acked   []string
	groups  []string
	addErr  error
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return redis.NewStringResult("", f.addErr)
	}
	f.added = append(f.added, a)
	id := time.Now().Format("150405.000000") + "-0"
	f.pending = append(f.pending, redis.XStream{
		Stream:   a.Stream,
		Messages: []redis.XMessage{{ID: id, Values: a.Values.(map[string]any)}},
	})
	return redis.NewStringResult(id, nil)
}

func (f *fakeClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	var out []redis.XStream
	rest := f.pending[:0]
	for _, s := range f.pending {
		if s.Stream == a.Streams[0] {
			out = append(out, s)
		} else {
			rest = append(rest, s)
		}
	}
	f.pending = rest
	f.mu.Unlock()

	cmd := redis.NewXStreamSliceCmd(ctx)
	if len(out) == 0 {
		select {
		case <-ctx.Done():
			cmd.SetErr(ctx.Err())
		case <-time.After(5 * time.Millisecond):
			cmd.SetErr(redis.Nil)
		}
		return cmd
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g == stream+"/"+group {
			return redis.NewStatusResult("", stdErrors.New("BUSYGROUP Consumer Group name already exists"))
		}
	}
	f.groups = append(f.groups, stream+"/"+group)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

func TestPublishAndConsume(t *testing.T) {
	ctx := context.Background()
	fake := &fakeClient{}
	tr := newTransport(Config{Codec: notify.Msgpack, MaxLen: 100, Logger: logging.NewNoopLogger()}, fake, false)

	got := make(chan *notify.Message, 1)
	require.NoError(t, tr.Subscribe("person.inserted", notify.HandlerFunc(func(_ context.Context, m *notify.Message) error {
		got <- m
		return nil
	})))
	require.NoError(t, tr.Start(ctx))
	t.Cleanup(func() { _ = tr.Close() })

	require.NoError(t, tr.Publish(ctx, &notify.Message{ID: "m1", Kind: "inserted", Table: "person", BeanID: 9}))

	select {
	case m := <-got:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, int64(9), m.BeanID)
	case <-time.After(2 * time.Second):
		t.Fatal("message not consumed")
	}
	assert.Eventually(t, func() bool { return fake.ackedCount() == 1 }, time.Second, 5*time.Millisecond)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.added, 1)
	assert.Equal(t, "gqm:person.inserted", fake.added[0].Stream)
	assert.Equal(t, int64(100), fake.added[0].MaxLen)
	assert.True(t, fake.added[0].Approx)
	assert.Equal(t, "msgpack", fake.added[0].Values.(map[string]any)["codec"])
}

func TestDecodeRejectsMalformedEntry(t *testing.T) {
	tr := newTransport(Config{}, &fakeClient{}, false)

	_, err := tr.decode(redis.XMessage{ID: "1-0", Values: map[string]any{"codec": "json"}})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))

	_, err = tr.decode(redis.XMessage{ID: "2-0", Values: map[string]any{"codec": "xml", "data": "<m/>"}})
	assert.True(t, errors.IsConfiguration(err))

	m, err := tr.decode(redis.XMessage{ID: "3-0", Values: map[string]any{
		"data": `{"id":"m3","kind":"deleted","table":"person","bean_id":3}`,
	}})
	require.NoError(t, err)
	assert.Equal(t, "person.deleted", m.Subject())
}

func TestPublishErrorAndWildcard(t *testing.T) {
	ctx := context.Background()
	tr := newTransport(Config{}, &fakeClient{addErr: stdErrors.New("READONLY")}, false)

	err := tr.Publish(ctx, &notify.Message{Kind: "inserted", Table: "person"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))

	err = tr.Subscribe(notify.Wildcard, notify.HandlerFunc(func(context.Context, *notify.Message) error { return nil }))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeUnsupported))
}
