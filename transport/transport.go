// Package transport talks to the table firmware over a serial link. It sends
// motion lines and waits for their acknowledgement, queries status and homes
// the arm. All link traffic is serialized on one mutex.
package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jt05610/sandtable/comm/serial"
	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/grbl"
	"github.com/jt05610/sandtable/kinematics"
	"github.com/jt05610/sandtable/state"
	"go.uber.org/zap"
)

type Config struct {
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	IgnorePorts    []string      `mapstructure:"ignore_ports"`
	AckTimeout     time.Duration `mapstructure:"ack_timeout"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	BannerWait     time.Duration `mapstructure:"banner_wait"`
	// MaxRetries bounds resends of an unacknowledged command; 0 retries forever.
	MaxRetries int `mapstructure:"max_retries"`
}

func DefaultConfig() Config {
	return Config{
		Baud:           115200,
		IgnorePorts:    serial.DefaultIgnore,
		AckTimeout:     2 * time.Second,
		RetryInterval:  time.Second,
		StatusInterval: time.Second,
		BannerWait:     2 * time.Second,
	}
}

// Dialer opens the named link.
type Dialer func(port string, baud int) (io.ReadWriteCloser, error)

// PortLister enumerates candidate links, minus ignored ones.
type PortLister func(ignore []string) ([]string, error)

func dialSerial(port string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.OpenPort(port, baud)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type Option func(*Transport)

func WithDialer(d Dialer) Option {
	return func(t *Transport) {
		t.dial = d
	}
}

func WithPortLister(l PortLister) Option {
	return func(t *Transport) {
		t.list = l
	}
}

type Transport struct {
	cfg    Config
	cal    kinematics.Calibration
	state  *state.Machine
	logger *zap.Logger
	dial   Dialer
	list   PortLister

	mu    sync.Mutex
	link  io.ReadWriteCloser
	port  string
	lines chan string
	done  chan struct{}

	// linkCtx is cancelled by Disconnect before it takes mu, so waits
	// holding mu give way. Written under both mu and connMu.
	connMu     sync.Mutex
	linkCtx    context.Context
	cancelLink context.CancelFunc

	infoMu sync.Mutex
	info   grbl.DeviceInfo
}

func New(cfg Config, cal kinematics.Calibration, st *state.Machine, logger *zap.Logger, opts ...Option) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Transport{
		cfg:    cfg,
		cal:    cal,
		state:  st,
		logger: logger,
		dial:   dialSerial,
		list:   serial.ListPorts,
	}
	t.linkCtx, t.cancelLink = context.WithCancel(context.Background())
	t.cancelLink()
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Ports() ([]string, error) {
	ports, err := t.list(t.cfg.IgnorePorts)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection, "failed to list serial ports", "")
	}
	return ports, nil
}

// Connect opens the link and homes the arm unless the firmware reports the
// position stored in state.
func (t *Transport) Connect(ctx context.Context, port string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link != nil {
		t.closeLocked()
	}
	if port == "" {
		port = t.cfg.Port
	}
	if port == "" {
		ports, err := t.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			return errors.New(errors.ErrConnection, "no serial ports available", "Plug in the table and check the port permissions")
		}
		port = ports[0]
	}
	link, err := t.dial(port, t.cfg.Baud)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConnection, "failed to open "+port, "Check that the port exists and is not in use")
	}
	t.link = link
	t.port = port
	t.lines = make(chan string, 64)
	t.done = make(chan struct{})
	t.connMu.Lock()
	t.linkCtx, t.cancelLink = context.WithCancel(context.Background())
	t.connMu.Unlock()
	go t.pump(link, t.lines, t.done)
	ctx, release := t.bind(ctx)
	defer release()
	t.logger.Info("Connected", zap.String("port", port), zap.Int("baud", t.cfg.Baud))

	if err := t.drainBanner(ctx); err != nil {
		t.closeLocked()
		return err
	}
	line, err := t.queryStatusLocked(ctx)
	if err != nil {
		t.closeLocked()
		return err
	}
	pos, ok := grbl.ParsePosition(line)
	stored := t.state.MachinePosition()
	device := kinematics.Position{X: pos.X, Y: pos.Y}
	if ok && device.Equal(stored) {
		t.logger.Info("Device position matches stored position, skipping homing",
			zap.Float64("x", device.X), zap.Float64("y", device.Y))
		return nil
	}
	t.logger.Info("Device position unknown or out of sync, homing",
		zap.Bool("known", ok), zap.Any("device", device), zap.Any("stored", stored))
	if err := t.homeLocked(ctx); err != nil {
		t.closeLocked()
		return err
	}
	return nil
}

func (t *Transport) pump(link io.Reader, lines chan string, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(link)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t.logger.Debug("Received", zap.String("line", line))
		t.infoMu.Lock()
		t.info.Inspect(line)
		t.infoMu.Unlock()
		offer(lines, line)
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn("Link closed", zap.Error(err))
	}
}

// offer queues line, dropping the oldest queued line when full.
func offer(lines chan string, line string) {
	for {
		select {
		case lines <- line:
			return
		default:
		}
		select {
		case <-lines:
		default:
		}
	}
}

func (t *Transport) drainBanner(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.BannerWait)
	defer timer.Stop()
	for {
		select {
		case line := <-t.lines:
			t.logger.Debug("Banner", zap.String("line", line))
		case <-timer.C:
			return nil
		case <-t.done:
			return t.disconnectedErr()
		case <-ctx.Done():
			return t.ctxErr(ctx)
		}
	}
}

// Disconnect aborts any wait in progress and closes the link.
func (t *Transport) Disconnect() error {
	t.interrupt()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *Transport) interrupt() {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	t.cancelLink()
}

// bind derives a context that is also cancelled when the link is interrupted.
// Callers hold mu.
func (t *Transport) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.linkCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// ctxErr reports a cancelled wait, as a link error when Disconnect caused it.
func (t *Transport) ctxErr(ctx context.Context) error {
	if t.linkCtx.Err() != nil {
		return t.disconnectedErr()
	}
	return ctx.Err()
}

func (t *Transport) closeLocked() error {
	if t.link == nil {
		return nil
	}
	t.interrupt()
	err := t.link.Close()
	select {
	case <-t.done:
	case <-time.After(time.Second):
		t.logger.Warn("Line pump did not exit", zap.String("port", t.port))
	}
	t.logger.Info("Disconnected", zap.String("port", t.port))
	t.link = nil
	t.port = ""
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConnection, "failed to close link", "")
	}
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectedLocked()
}

func (t *Transport) connectedLocked() bool {
	if t.link == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *Transport) Port() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Device returns the metadata seen in the firmware banner.
func (t *Transport) Device() grbl.DeviceInfo {
	t.infoMu.Lock()
	defer t.infoMu.Unlock()
	return t.info
}

func (t *Transport) disconnectedErr() error {
	return errors.New(errors.ErrConnection, "serial link is not connected", "Connect to the table first")
}

func (t *Transport) write(cmd string) error {
	t.drain()
	t.logger.Debug("Sending command", zap.String("cmd", strings.TrimSpace(cmd)))
	if _, err := io.WriteString(t.link, cmd); err != nil {
		return errors.WrapWithCode(err, errors.ErrConnection, "failed to write to link", "")
	}
	return nil
}

// drain discards stale lines so a wait only sees responses to the next write.
func (t *Transport) drain() {
	for {
		select {
		case <-t.lines:
		default:
			return
		}
	}
}

// await reads lines until match accepts one or the window closes.
func (t *Transport) await(ctx context.Context, window time.Duration, match func(string) bool) (string, bool, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case line := <-t.lines:
			if match(line) {
				return line, true, nil
			}
			if u, err := grbl.ParseLine(line); err == nil {
				switch u.(type) {
				case grbl.Error, grbl.Alarm:
					t.logger.Warn("Firmware reported a problem", zap.String("line", line))
				}
			}
		case <-timer.C:
			return "", false, nil
		case <-t.done:
			return "", false, t.disconnectedErr()
		case <-ctx.Done():
			return "", false, t.ctxErr(ctx)
		}
	}
}

// exchange writes cmd until a matching line is read, resending after each
// window that passes without one.
func (t *Transport) exchange(ctx context.Context, cmd string, window time.Duration, match func(string) bool) (string, error) {
	if !t.connectedLocked() {
		return "", t.disconnectedErr()
	}
	for attempt := 1; ; attempt++ {
		if err := t.write(cmd); err != nil {
			return "", err
		}
		line, ok, err := t.await(ctx, window, match)
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}
		if t.cfg.MaxRetries > 0 && attempt > t.cfg.MaxRetries {
			return "", errors.New(errors.ErrProtocol,
				"no response to "+strings.TrimSpace(cmd),
				"Check the firmware is responsive or raise transport.max_retries")
		}
		t.logger.Warn("No response, retrying",
			zap.String("cmd", strings.TrimSpace(cmd)), zap.Int("attempt", attempt))
		if err := sleep(ctx, t.cfg.RetryInterval); err != nil {
			return "", t.ctxErr(ctx)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendMove sends an absolute move and blocks until the firmware acknowledges it.
func (t *Transport) SendMove(ctx context.Context, x, y, feed float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, release := t.bind(ctx)
	defer release()
	_, err := t.exchange(ctx, grbl.MoveCommand(x, y, feed), t.cfg.AckTimeout, grbl.IsAck)
	return err
}

// QueryStatus returns the first status line carrying a position.
func (t *Transport) QueryStatus(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, release := t.bind(ctx)
	defer release()
	return t.queryStatusLocked(ctx)
}

func (t *Transport) queryStatusLocked(ctx context.Context) (string, error) {
	return t.exchange(ctx, grbl.StatusQuery, t.cfg.StatusInterval, grbl.HasPosition)
}

// RefreshPosition copies the device position into state.
func (t *Transport) RefreshPosition(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, release := t.bind(ctx)
	defer release()
	return t.refreshLocked(ctx)
}

func (t *Transport) refreshLocked(ctx context.Context) error {
	line, err := t.queryStatusLocked(ctx)
	if err != nil {
		return err
	}
	t.updatePosition(line)
	return nil
}

func (t *Transport) updatePosition(line string) {
	pos, ok := grbl.ParsePosition(line)
	if !ok {
		t.logger.Warn("Status without a usable position", zap.String("line", line))
		return
	}
	t.state.SetMachine(kinematics.Position{X: pos.X, Y: pos.Y})
}

// WaitIdle polls status until the firmware is idle, then refreshes the
// machine position from the idle report.
func (t *Transport) WaitIdle(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, release := t.bind(ctx)
	defer release()
	return t.waitIdleLocked(ctx)
}

func (t *Transport) waitIdleLocked(ctx context.Context) error {
	for {
		line, err := t.queryStatusLocked(ctx)
		if err != nil {
			return err
		}
		if grbl.IsIdle(line) {
			t.updatePosition(line)
			return nil
		}
		if err := sleep(ctx, t.cfg.StatusInterval); err != nil {
			return t.ctxErr(ctx)
		}
	}
}

// Home retracts the arm against the center stop and resets the logical
// position to the center.
func (t *Transport) Home(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ctx, release := t.bind(ctx)
	defer release()
	return t.homeLocked(ctx)
}

func (t *Transport) homeLocked(ctx context.Context) error {
	d := t.cal.HomeDistance()
	t.logger.Info("Homing", zap.Float64("distance", d))
	if _, err := t.exchange(ctx, grbl.JogCommand(-d, t.cal.FeedRate), t.cfg.AckTimeout, grbl.IsAck); err != nil {
		return err
	}
	t.state.ResetLogical()
	return t.waitIdleLocked(ctx)
}
