package natsjetstream

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"gqm/errors"
	"gqm/notify"
)

func TestNaming(t *testing.T) {
	tr := NewTransport(Config{})

	assert.Equal(t, "gqm.person.inserted", tr.subjectName("person.inserted"))
	assert.Equal(t, "gqm.>", tr.subjectName(notify.Wildcard))
	assert.Equal(t, "gqm-person_inserted", tr.durableName("person.inserted"))
	assert.Equal(t, "gqm-all", tr.durableName(notify.Wildcard))
}

func TestStreamConfig(t *testing.T) {
	tr := NewTransport(Config{Stream: "ORDERS", SubjectPrefix: "orders.", Retention: "WorkQueue", Replicas: 3})
	sc := tr.streamConfig()

	assert.Equal(t, "ORDERS", sc.Name)
	assert.Equal(t, []string{"orders.>"}, sc.Subjects)
	assert.Equal(t, nats.WorkQueuePolicy, sc.Retention)
	assert.Equal(t, 3, sc.Replicas)

	assert.Equal(t, nats.LimitsPolicy, NewTransport(Config{}).streamConfig().Retention)
}

func TestPublishBeforeStart(t *testing.T) {
	tr := NewTransport(Config{})
	err := tr.Publish(context.Background(), &notify.Message{Table: "person", Kind: "inserted"})
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeQueue))

	assert.NoError(t, tr.Subscribe("person.inserted", notify.HandlerFunc(func(context.Context, *notify.Message) error { return nil })))
	stats := tr.Stats()
	assert.False(t, stats.Running)
	assert.Equal(t, 1, stats.HandlerCount)
	assert.NoError(t, tr.Close())
}
