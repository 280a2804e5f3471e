// Package server exposes a table controller as AMQP commands.
package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp2 "github.com/jt05610/sandtable/amqp"
	"github.com/jt05610/sandtable/engine"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/table"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	CommandRun         = "run"
	CommandRunPlaylist = "run_playlist"
	CommandPause       = "pause"
	CommandResume      = "resume"
	CommandStop        = "stop"
	CommandSkip        = "skip"
	CommandHome        = "home"
	CommandMove        = "move"
	CommandStatus      = "status"
)

var Commands = []string{
	CommandRun,
	CommandRunPlaylist,
	CommandPause,
	CommandResume,
	CommandStop,
	CommandSkip,
	CommandHome,
	CommandMove,
	CommandStatus,
}

// Controller is the operator surface commands are dispatched to.
type Controller interface {
	RunFile(name string) error
	RunFiles(files []string, opts engine.PlaylistOptions) error
	RunPlaylist(ctx context.Context, name string, opts engine.PlaylistOptions) error
	Pause()
	Resume()
	Stop()
	Skip() bool
	Home(ctx context.Context) error
	MoveTo(ctx context.Context, theta, rho float64) error
	Status() table.Status
}

// Channel is the subset of *amqp.Channel the server uses.
type Channel interface {
	amqp2.Publisher
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type Server struct {
	ch       Channel
	ctrl     Controller
	queue    string
	exchange string
	deviceID string
	logger   *zap.Logger
}

func New(ch Channel, exchange string, deviceID string, ctrl Controller, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		false,    // durable
		false,    // delete when unused
		false,    // exclusive
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection, "failed to declare exchange "+exchange, "")
	}
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection, "failed to declare queue", "")
	}
	for _, name := range Commands {
		err := ch.QueueBind(
			q.Name,                     // queue name
			deviceID+".commands."+name, // routing key
			exchange,                   // exchange
			false,
			nil)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConnection, "failed to bind "+name, "")
		}
	}
	return &Server{
		ch:       ch,
		ctrl:     ctrl,
		queue:    q.Name,
		exchange: exchange,
		deviceID: deviceID,
		logger:   logger,
	}, nil
}

// Listen consumes commands until ctx is done or the channel closes.
func (s *Server) Listen(ctx context.Context) error {
	msgs, err := s.ch.Consume(
		s.queue, // queue
		"",      // consumer
		true,    // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConnection, "failed to register a consumer", "")
	}
	s.logger.Info("Listening for commands", zap.String("exchange", s.exchange), zap.String("device", s.deviceID))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New(errors.ErrConnection, "broker closed the delivery channel", "Check the broker connection")
			}
			s.handle(ctx, d)
		}
	}
}

func (s *Server) handle(ctx context.Context, d amqp.Delivery) {
	s.logger.Debug("Received command", zap.String("key", d.RoutingKey), zap.ByteString("body", d.Body))
	cmd, err := amqp2.Load(d)
	if cmd == nil {
		s.logger.Warn("Dropping message", zap.String("key", d.RoutingKey), zap.Error(err))
		return
	}
	var event *amqp2.Event
	if err != nil {
		event = &amqp2.Event{Name: cmd.Name, ID: cmd.ID}
		event.Fail(err)
	} else {
		event = s.Dispatch(ctx, cmd)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	resp, err := amqp2.Flush(event)
	if err != nil {
		s.logger.Error("Failed to encode reply", zap.Error(err))
		return
	}
	key := s.deviceID + ".events." + event.Name
	if err := s.ch.PublishWithContext(ctx, s.exchange, key, false, false, resp); err != nil {
		s.logger.Error("Failed to publish reply", zap.String("key", key), zap.Error(err))
	}
}

type runRequest struct {
	File         string   `json:"file"`
	Files        []string `json:"files"`
	Name         string   `json:"name"`
	PauseTime    float64  `json:"pause_time"`
	ClearPattern string   `json:"clear_pattern"`
	RunMode      string   `json:"run_mode"`
	Shuffle      bool     `json:"shuffle"`
}

func (r *runRequest) options() engine.PlaylistOptions {
	return engine.PlaylistOptions{
		PauseTime: time.Duration(r.PauseTime * float64(time.Second)),
		ClearMode: r.ClearPattern,
		Mode:      r.RunMode,
		Shuffle:   r.Shuffle,
	}
}

func (r *runRequest) single() bool {
	return len(r.Files) == 0 && r.File != "" && r.ClearPattern == "" && r.RunMode == "" && !r.Shuffle
}

type moveRequest struct {
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

func decode(cmd *amqp2.Command, into any) error {
	if len(cmd.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(cmd.Data, into); err != nil {
		return errors.WrapWithCode(err, errors.ErrParse, "invalid "+cmd.Name+" request", "")
	}
	return nil
}

// Dispatch runs cmd against the controller. The reply carries the status on
// success and the error otherwise.
func (s *Server) Dispatch(ctx context.Context, cmd *amqp2.Command) *amqp2.Event {
	event := &amqp2.Event{Name: cmd.Name, ID: cmd.ID}
	if err := s.dispatch(ctx, cmd, event); err != nil {
		s.logger.Warn("Command failed", zap.String("command", cmd.Name), zap.Error(err))
		event.Fail(err)
		return event
	}
	if event.Data == nil {
		event.Data = s.ctrl.Status()
	}
	return event
}

func (s *Server) dispatch(ctx context.Context, cmd *amqp2.Command, event *amqp2.Event) error {
	switch cmd.Name {
	case CommandRun:
		var req runRequest
		if err := decode(cmd, &req); err != nil {
			return err
		}
		if req.single() {
			return s.ctrl.RunFile(req.File)
		}
		files := req.Files
		if req.File != "" {
			files = append([]string{req.File}, files...)
		}
		return s.ctrl.RunFiles(files, req.options())
	case CommandRunPlaylist:
		var req runRequest
		if err := decode(cmd, &req); err != nil {
			return err
		}
		return s.ctrl.RunPlaylist(ctx, req.Name, req.options())
	case CommandPause:
		s.ctrl.Pause()
	case CommandResume:
		s.ctrl.Resume()
	case CommandStop:
		s.ctrl.Stop()
	case CommandSkip:
		event.Data = map[string]bool{"skipped": s.ctrl.Skip()}
	case CommandHome:
		return s.ctrl.Home(ctx)
	case CommandMove:
		var req moveRequest
		if err := decode(cmd, &req); err != nil {
			return err
		}
		return s.ctrl.MoveTo(ctx, req.Theta, req.Rho)
	case CommandStatus:
	default:
		return errors.New(errors.ErrParse, "unknown command: "+cmd.Name, "")
	}
	return nil
}
