// Package pattern reads theta-rho pattern files.
//
// A pattern is plain text, one "<theta> <rho>" pair per line. Blank lines and
// lines starting with '#' are ignored, malformed lines are skipped with a
// warning. Parsed sequences are normalized so that they start at theta 0.
package pattern

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Coordinate is one polar point of a pattern. Theta is cumulative radians, Rho
// is the normalized radius (0 center, 1 perimeter).
type Coordinate struct {
	Theta float64
	Rho   float64
}

// Parse reads coordinates from r. Only read errors are returned; a source with
// no valid lines yields an empty sequence.
func Parse(r io.Reader, logger *zap.Logger) ([]Coordinate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	coords := make([]Coordinate, 0, 256)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, ok := parseLine(line)
		if !ok {
			logger.Warn("Skipping invalid line", zap.Int("line", lineNo), zap.String("content", line))
			continue
		}
		coords = append(coords, c)
	}
	if err := scanner.Err(); err != nil {
		return Normalize(coords), err
	}
	return Normalize(coords), nil
}

func parseLine(line string) (Coordinate, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return Coordinate{}, false
	}
	theta, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Coordinate{}, false
	}
	rho, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Coordinate{}, false
	}
	if !finite(theta) || !finite(rho) {
		return Coordinate{}, false
	}
	return Coordinate{Theta: theta, Rho: rho}, true
}

// Normalize shifts every theta by the first one so the sequence starts at 0.
// The input is modified in place and returned.
func Normalize(coords []Coordinate) []Coordinate {
	if len(coords) == 0 {
		return coords
	}
	first := coords[0].Theta
	for i := range coords {
		coords[i].Theta -= first
	}
	return coords
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
