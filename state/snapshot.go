package state

import (
	"github.com/jt05610/sandtable/kinematics"
)

type PlaylistStatus struct {
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Mode     string `json:"mode"`
	NextFile string `json:"next_file"`
}

// Snapshot is the status pushed to subscribers and returned to operators.
type Snapshot struct {
	Completed        int                 `json:"completed"`
	Total            int                 `json:"total"`
	Percentage       float64             `json:"percentage"`
	ElapsedSeconds   float64             `json:"elapsed_seconds"`
	RemainingSeconds *float64            `json:"remaining_seconds"`
	Paused           bool                `json:"paused"`
	Running          bool                `json:"running"`
	CurrentFile      string              `json:"current_file"`
	IsClearing       bool                `json:"is_clearing"`
	Playlist         *PlaylistStatus     `json:"playlist"`
	LastRun          *Progress           `json:"last_run,omitempty"`
	Position         kinematics.Polar    `json:"position"`
	MachinePosition  kinematics.Position `json:"machine_position"`
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Paused:          m.pause,
		Running:         m.file != "",
		CurrentFile:     m.file,
		IsClearing:      m.clearing,
		Position:        m.logical,
		MachinePosition: m.machine,
	}
	if p := m.progress; p != nil {
		s.Completed = p.Completed
		s.Total = p.Total
		s.ElapsedSeconds = p.Elapsed
		if p.Remaining != nil {
			r := *p.Remaining
			s.RemainingSeconds = &r
		}
		if p.Total > 0 {
			s.Percentage = float64(p.Completed) / float64(p.Total) * 100
		}
	}
	if m.lastRun != nil {
		p := *m.lastRun
		s.LastRun = &p
	}
	if len(m.playlist) > 0 {
		s.Playlist = &PlaylistStatus{
			Index:    m.index,
			Total:    len(m.playlist),
			Mode:     m.mode,
			NextFile: m.nextFile(),
		}
	}
	return s
}

func (m *Machine) nextFile() string {
	next := m.index + 1
	if next < len(m.playlist) {
		return m.playlist[next]
	}
	if m.mode == ModeIndefinite {
		return m.playlist[0]
	}
	return ""
}
