package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/state"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cmd, err := Load(amqp.Delivery{
		RoutingKey: "table1.commands.run",
		Headers:    amqp.Table{"x-event-id": "abc"},
		Body:       []byte(`{"file":"spiral.thr"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "table1", cmd.To)
	assert.Equal(t, "commands", cmd.Topic)
	assert.Equal(t, "run", cmd.Name)
	assert.Equal(t, "abc", cmd.ID)
	assert.JSONEq(t, `{"file":"spiral.thr"}`, string(cmd.Data))
}

func TestLoadEmptyBody(t *testing.T) {
	cmd, err := Load(amqp.Delivery{RoutingKey: "table1.commands.pause"})
	require.NoError(t, err)
	assert.Equal(t, "pause", cmd.Name)
	assert.Empty(t, cmd.Data)
}

func TestLoadErrors(t *testing.T) {
	cmd, err := Load(amqp.Delivery{RoutingKey: "table1.pause"})
	assert.Nil(t, cmd)
	assert.True(t, errors.IsCode(err, errors.ErrParse))

	cmd, err = Load(amqp.Delivery{RoutingKey: "table1.commands.run", Body: []byte("{")})
	require.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Name)
	assert.True(t, errors.IsCode(err, errors.ErrParse))
}

func TestEventFail(t *testing.T) {
	e := &Event{Name: "run"}
	e.Fail(fmt.Errorf("starting: %w", errors.NotFound("pattern", "x.thr")))
	assert.Equal(t, errors.ErrNotFound, e.Code)
	assert.Equal(t, "pattern not found: x.thr", e.Error)

	e = &Event{Name: "run"}
	e.Fail(fmt.Errorf("plain"))
	assert.Empty(t, e.Code)
	assert.Equal(t, "plain", e.Error)
}

func TestFlush(t *testing.T) {
	msg, err := Flush(&Event{Name: "status", ID: "42", Data: map[string]int{"completed": 3}})
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "status", msg.Headers["x-event-name"])
	assert.Equal(t, "42", msg.Headers["x-event-id"])
	assert.JSONEq(t, `{"data":{"completed":3}}`, string(msg.Body))
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type recorder struct {
	sent []published
	err  error
}

func (r *recorder) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestProgressPublisher(t *testing.T) {
	rec := &recorder{}
	p := NewProgressPublisher(rec, "sandtable", "table1")
	assert.Equal(t, "table1.state.progress", p.RoutingKey())

	snap := state.Snapshot{Completed: 5, Total: 10, Percentage: 50, Running: true, CurrentFile: "spiral.thr"}
	require.NoError(t, p.Send(context.Background(), snap))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "sandtable", rec.sent[0].exchange)
	assert.Equal(t, "table1.state.progress", rec.sent[0].key)
	assert.Equal(t, "progress", rec.sent[0].msg.Headers["x-event-name"])
	assert.NotEmpty(t, rec.sent[0].msg.Headers["x-event-id"])

	var body struct {
		Data state.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.sent[0].msg.Body, &body))
	assert.Equal(t, 5, body.Data.Completed)
	assert.Equal(t, "spiral.thr", body.Data.CurrentFile)
	assert.True(t, body.Data.Running)

	rec.err = fmt.Errorf("channel closed")
	assert.Error(t, p.Send(context.Background(), snap))
}
