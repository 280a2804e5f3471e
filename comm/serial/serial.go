// Package serial opens and enumerates the serial links the table firmware
// is attached to.
package serial

import (
	"io"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jt05610/sandtable/errors"
	"go.bug.st/serial"
)

// DefaultIgnore lists ports that are never a table.
var DefaultIgnore = []string{
	"/dev/cu.debug-console",
	"/dev/cu.Bluetooth-Incoming-Port",
}

type Port struct {
	name   string
	port   serial.Port
	closed atomic.Bool
}

// ListPorts returns the available ports minus those in ignore.
func ListPorts(ignore []string) ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list serial ports")
	}
	return filterPorts(ports, ignore), nil
}

func filterPorts(ports, ignore []string) []string {
	ret := make([]string, 0, len(ports))
	for _, p := range ports {
		if slices.Contains(ignore, p) {
			continue
		}
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

func OpenPort(port string, baud int) (*Port, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port "+port)
	}

	err = p.SetReadTimeout(time.Duration(500) * time.Millisecond)
	if err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "failed to configure serial port "+port)
	}
	return &Port{name: port, port: p}, nil
}

func (p *Port) Name() string {
	return p.name
}

// Read blocks until data arrives or the port fails. The underlying read
// timeout only bounds each poll.
func (p *Port) Read(data []byte) (int, error) {
	for {
		n, err := p.port.Read(data)
		if n > 0 || err != nil {
			return n, err
		}
		if p.closed.Load() {
			return 0, io.EOF
		}
	}
}

func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.port.Close()
}
