// Package state holds the shared machine and execution state of the table.
// Every read and write goes through Machine's mutex.
package state

import (
	"context"
	"sync"

	"github.com/jt05610/sandtable/kinematics"
)

const (
	ModeSingle     = "single"
	ModeIndefinite = "indefinite"
)

// Progress of the running pattern.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	// Remaining is the estimated seconds left, nil until known.
	Remaining *float64 `json:"remaining_seconds"`
	Elapsed   float64  `json:"elapsed_seconds"`
}

// Persisted is the part of the state kept across restarts.
type Persisted struct {
	Logical kinematics.Polar    `json:"logical"`
	Machine kinematics.Position `json:"machine"`
}

type Machine struct {
	mu sync.Mutex

	logical kinematics.Polar
	machine kinematics.Position

	file     string
	clearing bool
	progress *Progress
	lastRun  *Progress

	stop   bool
	pause  bool
	skip   bool
	resume chan struct{}
	halt   chan struct{}

	playlist []string
	index    int
	mode     string
}

func New() *Machine {
	return &Machine{halt: make(chan struct{})}
}

func (m *Machine) Logical() kinematics.Polar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logical
}

func (m *Machine) MachinePosition() kinematics.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.machine
}

// Positions returns the logical and machine positions as one consistent pair.
func (m *Machine) Positions() (kinematics.Polar, kinematics.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logical, m.machine
}

// CommitMove records an acknowledged move.
func (m *Machine) CommitMove(logical kinematics.Polar, machine kinematics.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logical = logical
	m.machine = machine
}

func (m *Machine) SetMachine(p kinematics.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.machine = p
}

// ResetLogical moves the logical position to the center.
func (m *Machine) ResetLogical() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logical = kinematics.Polar{}
}

// ResetTheta zeroes the angle so a normalized pattern starts where the arm is.
func (m *Machine) ResetTheta() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logical.Theta = 0
}

// BeginJob clears a pause, stop or skip left over from before the job.
func (m *Machine) BeginJob() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	m.stop = false
	m.skip = false
	m.halt = make(chan struct{})
}

func (m *Machine) BeginRun(file string, clearing bool, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.file = file
	m.clearing = clearing
	m.skip = false
	m.progress = &Progress{Total: total}
}

// UpdateProgress replaces the progress of file. It is ignored once a stop
// has been requested or another file has started.
func (m *Machine) UpdateProgress(file string, p Progress) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop || m.file != file || m.progress == nil {
		return false
	}
	m.progress = &p
	return true
}

// EndRun clears the running file. A non-nil final progress is kept as the
// last run.
func (m *Machine) EndRun(final *Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if final != nil {
		p := *final
		m.lastRun = &p
	}
	m.file = ""
	m.clearing = false
	m.progress = nil
}

func (m *Machine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file != ""
}

func (m *Machine) CurrentFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file
}

func (m *Machine) Progress() (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progress == nil {
		return Progress{}, false
	}
	return *m.progress, true
}

func (m *Machine) LastRun() (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRun == nil {
		return Progress{}, false
	}
	return *m.lastRun, true
}

func (m *Machine) RequestPause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pause = true
	if m.resume == nil {
		m.resume = make(chan struct{})
	}
}

func (m *Machine) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *Machine) release() {
	m.pause = false
	if m.resume != nil {
		close(m.resume)
		m.resume = nil
	}
}

func (m *Machine) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pause
}

// RequestStop aborts the running file and releases any paused waiter.
// Calling it when nothing runs is harmless.
func (m *Machine) RequestStop(clearPlaylist bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	m.stop = true
	select {
	case <-m.halt:
	default:
		close(m.halt)
	}
	m.file = ""
	m.clearing = false
	m.progress = nil
	if clearPlaylist {
		m.clearPlaylist()
	}
}

func (m *Machine) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop
}

// StopSignal is closed once a stop is requested for the current job.
func (m *Machine) StopSignal() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halt
}

// RequestSkip aborts the running file only, waking it if paused. The pause
// itself stays in effect for the next file. It reports false when nothing
// runs.
func (m *Machine) RequestSkip() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == "" {
		return false
	}
	m.skip = true
	if m.resume != nil {
		close(m.resume)
		m.resume = make(chan struct{})
	}
	return true
}

func (m *Machine) SkipRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skip
}

// Interrupted reports whether the running file should end now.
func (m *Machine) Interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop || m.skip
}

// WaitWhilePaused blocks until the machine is resumed, stopped or the
// running file is skipped.
func (m *Machine) WaitWhilePaused(ctx context.Context) error {
	for {
		m.mu.Lock()
		if !m.pause || m.stop || m.skip {
			m.mu.Unlock()
			return nil
		}
		gate := m.resume
		m.mu.Unlock()
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Machine) BeginPlaylist(files []string, mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlist = append([]string(nil), files...)
	m.index = 0
	m.mode = mode
}

// SetPlaylistFiles replaces the playlist order, as after a shuffle.
func (m *Machine) SetPlaylistFiles(files []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playlist == nil {
		return
	}
	m.playlist = append([]string(nil), files...)
}

func (m *Machine) SetPlaylistIndex(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = i
}

func (m *Machine) EndPlaylist() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearPlaylist()
}

func (m *Machine) clearPlaylist() {
	m.playlist = nil
	m.index = 0
	m.mode = ""
}

func (m *Machine) Persisted() Persisted {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Persisted{Logical: m.logical, Machine: m.machine}
}

func (m *Machine) Restore(p Persisted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logical = p.Logical
	m.machine = p.Machine
}
