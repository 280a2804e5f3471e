// Package transporttest provides a scripted GRBL firmware on an in-memory link.
package transporttest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Firmware answers motion lines with "ok" and '?' with a status report.
type Firmware struct {
	Banner []string

	mu       sync.Mutex
	x, y     float64
	dropAcks int
	busy     int
	silent   bool
	commands []string
	conn     net.Conn
}

func New(banner ...string) *Firmware {
	return &Firmware{Banner: banner}
}

// Dial satisfies transport.Dialer.
func (f *Firmware) Dial(string, int) (io.ReadWriteCloser, error) {
	client, server := net.Pipe()
	f.mu.Lock()
	f.conn = server
	f.mu.Unlock()
	go f.serve(server)
	return client, nil
}

func (f *Firmware) serve(conn net.Conn) {
	defer conn.Close()
	for _, line := range f.Banner {
		if _, err := io.WriteString(conn, line+"\n"); err != nil {
			return
		}
	}
	rdr := bufio.NewReader(conn)
	var buf []byte
	for {
		b, err := rdr.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case '?':
			if status, ok := f.status(); ok {
				if _, err := io.WriteString(conn, status); err != nil {
					return
				}
			}
		case '\n':
			reply := f.handle(string(buf))
			buf = buf[:0]
			if reply == "" {
				continue
			}
			if _, err := io.WriteString(conn, reply); err != nil {
				return
			}
		default:
			buf = append(buf, b)
		}
	}
}

func (f *Firmware) status() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.silent {
		return "", false
	}
	state := "Idle"
	if f.busy > 0 {
		f.busy--
		state = "Run"
	}
	return fmt.Sprintf("<%s|WPos:%.3f,%.3f,0.000|Bf:15,128|FS:0,0>\n", state, f.x, f.y), true
}

func (f *Firmware) handle(line string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	line = strings.TrimSpace(line)
	f.commands = append(f.commands, line)
	switch {
	case strings.HasPrefix(line, "G1"):
		for _, word := range strings.Fields(line) {
			v, err := strconv.ParseFloat(word[1:], 64)
			if err != nil {
				continue
			}
			switch word[0] {
			case 'X':
				f.x = v
			case 'Y':
				f.y = v
			}
		}
	case strings.HasPrefix(line, "$J="):
		for _, word := range strings.Fields(strings.TrimPrefix(line, "$J=")) {
			if word[0] != 'Y' {
				continue
			}
			if v, err := strconv.ParseFloat(word[1:], 64); err == nil {
				f.y += v
			}
		}
	default:
		return "error:20\n"
	}
	if f.dropAcks > 0 {
		f.dropAcks--
		return ""
	}
	return "ok\n"
}

// SetPosition sets the work position reported by status.
func (f *Firmware) SetPosition(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.x, f.y = x, y
}

func (f *Firmware) Position() (x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.x, f.y
}

// DropAcks swallows the acknowledgement of the next n commands.
func (f *Firmware) DropAcks(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropAcks = n
}

// Busy reports Run for the next n status queries.
func (f *Firmware) Busy(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = n
}

// Silent stops answering status queries.
func (f *Firmware) Silent(silent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = silent
}

// Commands returns every line received so far.
func (f *Firmware) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Count returns how many received lines start with prefix.
func (f *Firmware) Count(prefix string) int {
	n := 0
	for _, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
