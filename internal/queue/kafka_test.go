package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) Close() error { return nil }

func TestPublishAlertEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, eventsTopic: "alert-events", logger: zap.NewNop()}

	err := p.PublishAlertEvent(context.Background(), AlertEvent{
		Kind:      EventAlertCreated,
		AlertID:   42,
		AlertType: "emergency",
		Severity:  "critical",
		Status:    "active",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "alert-events", msg.Topic)
	assert.Equal(t, "42", string(msg.Key))

	var ev AlertEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.OccurredAt.IsZero())
	assert.Equal(t, EventAlertCreated, ev.Kind)
}

func TestPublishAlertEvent_WriteError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, logger: zap.NewNop()}

	err := p.PublishAlertEvent(context.Background(), AlertEvent{Kind: EventAlertResolved, AlertID: 1})
	assert.ErrorContains(t, err, "broker down")
}

func TestPublishAlertCommand(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, commandsTopic: "alert-commands", logger: zap.NewNop()}

	id, err := p.PublishAlertCommand(context.Background(), CommandEmergency, map[string]any{"title": "Fire"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "alert-commands", w.msgs[0].Topic)
	assert.Equal(t, id, string(w.msgs[0].Key))

	var cmd AlertCommand
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &cmd))
	assert.Equal(t, CommandEmergency, cmd.Kind)
	assert.JSONEq(t, `{"title":"Fire"}`, string(cmd.Payload))
}

func TestConsumeAlertCommands_SkipsBadMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, _ := json.Marshal(AlertCommand{ID: "a", Kind: CommandZoneBreach, Payload: json.RawMessage(`{}`)})
	failing, _ := json.Marshal(AlertCommand{ID: "b", Kind: CommandAssignment, Payload: json.RawMessage(`{}`)})
	reader := &fakeReader{
		msgs:   []kafka.Message{{Value: []byte("not json")}, {Value: failing}, {Value: good}},
		cancel: cancel,
	}
	c := &Consumer{reader: reader, logger: zap.NewNop()}

	var handled []string
	err := c.ConsumeAlertCommands(ctx, func(_ context.Context, cmd AlertCommand) error {
		handled = append(handled, cmd.ID)
		if cmd.ID == "b" {
			return errors.New("handler failed")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"b", "a"}, handled)
}
