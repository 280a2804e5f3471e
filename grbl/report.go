package grbl

import (
	"strings"
)

// ParseStatus decodes a status report line.
func ParseStatus(line string) (*Status, bool) {
	u, err := ParseLine(line)
	if err != nil {
		return nil, false
	}
	s, ok := u.(*Status)
	return s, ok
}

// ParsePosition extracts the work position from a status report. Reports
// without a WPos field fall back to MPos.
func ParsePosition(line string) (Position, bool) {
	s, ok := ParseStatus(line)
	if !ok {
		return Position{}, false
	}
	p, ok := s.Position()
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func ParseBuffer(line string) (Buffer, bool) {
	s, ok := ParseStatus(line)
	if !ok || s.Buffer == nil {
		return Buffer{}, false
	}
	return *s.Buffer, true
}

// HasPosition reports whether the line carries a position marker.
func HasPosition(line string) bool {
	return strings.Contains(line, "WPos:") || strings.Contains(line, "MPos:")
}

func IsIdle(line string) bool {
	return strings.Contains(line, "Idle")
}

func IsAck(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "ok")
}

// DeviceInfo is the metadata printed by the firmware at startup.
type DeviceInfo struct {
	Table   string `json:"table,omitempty"`
	Drivers string `json:"drivers,omitempty"`
	Version string `json:"version,omitempty"`
}

// Inspect records any banner field carried by line and reports whether
// one was found.
func (d *DeviceInfo) Inspect(line string) bool {
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"Table:", &d.Table},
		{"Drivers:", &d.Drivers},
		{"Version:", &d.Version},
	} {
		_, v, found := strings.Cut(line, f.key)
		if !found {
			continue
		}
		*f.dst = strings.TrimSpace(v)
		return true
	}
	return false
}
