// Package amqp carries table commands and progress over a RabbitMQ topic
// exchange. Routing keys have the form <device>.<topic>.<name>.
package amqp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/state"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Command is a request addressed to a device.
type Command struct {
	To    string
	Topic string
	Name  string
	ID    string
	Data  json.RawMessage
}

// Load decodes a delivery into a command.
func Load(data amqp.Delivery) (*Command, error) {
	sk := strings.Split(data.RoutingKey, ".")
	if len(sk) != 3 {
		return nil, errors.New(errors.ErrParse, "invalid routing key: "+data.RoutingKey, "Use <device>.commands.<name>")
	}
	res := &Command{
		To:    sk[0],
		Topic: sk[1],
		Name:  sk[2],
	}
	if data.Headers != nil {
		if id, ok := data.Headers["x-event-id"].(string); ok {
			res.ID = id
		}
	}
	if len(data.Body) == 0 {
		return res, nil
	}
	if !json.Valid(data.Body) {
		return res, errors.New(errors.ErrParse, "command body is not valid JSON", "")
	}
	res.Data = data.Body
	return res, nil
}

// Event is the reply to a command, or a pushed state update.
type Event struct {
	Name  string `json:"-"`
	ID    string `json:"-"`
	Data  any    `json:"data,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Fail records err on the event.
func (e *Event) Fail(err error) {
	var tErr *errors.Error
	if stderrors.As(err, &tErr) {
		e.Code = tErr.Code
		e.Error = tErr.Message
		return
	}
	e.Error = err.Error()
}

func Flush(event *Event) (amqp.Publishing, error) {
	bytes, err := json.Marshal(event)
	if err != nil {
		var zero amqp.Publishing
		return zero, err
	}
	return amqp.Publishing{
		Body:         bytes,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			"x-event-name": event.Name,
			"x-event-id":   event.ID,
		},
	}, nil
}

// Publisher is the part of a channel used to send messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ProgressPublisher pushes progress snapshots on <device>.state.progress.
type ProgressPublisher struct {
	ch       Publisher
	exchange string
	deviceID string
}

func NewProgressPublisher(ch Publisher, exchange, deviceID string) *ProgressPublisher {
	return &ProgressPublisher{ch: ch, exchange: exchange, deviceID: deviceID}
}

func (p *ProgressPublisher) RoutingKey() string {
	return p.deviceID + ".state.progress"
}

func (p *ProgressPublisher) Send(ctx context.Context, snap state.Snapshot) error {
	msg, err := Flush(&Event{Name: "progress", ID: uuid.NewString(), Data: snap})
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.RoutingKey(), false, false, msg)
}

type Connection struct {
	*amqp.Connection
	*amqp.Channel
}

func (c *Connection) Close() error {
	if c.Channel != nil {
		err := c.Channel.Close()
		if err != nil {
			return err
		}
	}
	return c.Connection.Close()
}

func Dial(uri string) (*Connection, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection, "failed to connect to broker", "Check amqp.uri")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.WrapWithCode(err, errors.ErrConnection, "failed to open channel", "")
	}
	return &Connection{conn, ch}, nil
}
