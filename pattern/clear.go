package pattern

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clear pattern modes accepted by Selector.Resolve besides the role names.
const (
	ClearNone     = "none"
	ClearRandom   = "random"
	ClearAdaptive = "adaptive"
)

// ClearSet maps the three clear-pattern roles to pattern references.
type ClearSet struct {
	FromIn   string `mapstructure:"clear_from_in"`
	FromOut  string `mapstructure:"clear_from_out"`
	Sideways string `mapstructure:"clear_sideways"`
}

func DefaultClearSet() ClearSet {
	return ClearSet{
		FromIn:   "clear_from_in.thr",
		FromOut:  "clear_from_out.thr",
		Sideways: "clear_sideway.thr",
	}
}

func (s ClearSet) All() []string {
	return []string{s.FromIn, s.FromOut, s.Sideways}
}

// Contains reports whether name is one of the clear patterns.
func (s ClearSet) Contains(name string) bool {
	n := clean(name)
	for _, c := range s.All() {
		if clean(c) == n {
			return true
		}
	}
	return false
}

func (s ClearSet) role(mode string) (string, bool) {
	switch mode {
	case "clear_from_in", "from_in":
		return s.FromIn, true
	case "clear_from_out", "from_out":
		return s.FromOut, true
	case "clear_sideway", "clear_sideways", "sideways":
		return s.Sideways, true
	}
	return "", false
}

// Selector picks the clear pattern to run before a playlist entry.
type Selector struct {
	set    ClearSet
	src    Source
	logger *zap.Logger
	mu     sync.Mutex
	rnd    *rand.Rand
}

func NewSelector(set ClearSet, src Source, logger *zap.Logger) *Selector {
	return NewSelectorWithRand(set, src, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
}

func NewSelectorWithRand(set ClearSet, src Source, rnd *rand.Rand, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{set: set, src: src, rnd: rnd, logger: logger}
}

func (s *Selector) Set() ClearSet {
	return s.set
}

func (s *Selector) pick(choices ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return choices[s.rnd.Intn(len(choices))]
}

// Shuffle permutes names in place with the selector's random source.
func (s *Selector) Shuffle(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})
}

// Resolve returns the clear pattern for mode ahead of target, or "" when no
// clear pattern should run.
func (s *Selector) Resolve(mode string, target string) string {
	if mode == "" || mode == ClearNone {
		return ""
	}
	s.logger.Info("Clear pattern mode", zap.String("mode", mode))
	switch mode {
	case ClearRandom:
		return s.pick(s.set.All()...)
	case ClearAdaptive:
		return s.adaptive(target)
	}
	if file, ok := s.set.role(mode); ok {
		return file
	}
	s.logger.Warn("Invalid clear pattern mode", zap.String("mode", mode))
	return s.pick(s.set.All()...)
}

// adaptive clears from the outside when the target starts near the center,
// otherwise from the inside or sideways.
func (s *Selector) adaptive(target string) string {
	if target == "" {
		s.logger.Warn("No path provided for adaptive clear pattern")
		return s.pick(s.set.All()...)
	}
	coords, err := Load(s.src, target, s.logger)
	if err != nil || len(coords) == 0 {
		s.logger.Warn("No valid coordinates found in file for adaptive clear pattern", zap.String("file", target))
		return s.pick(s.set.All()...)
	}
	if coords[0].Rho < 0.5 {
		return s.set.FromOut
	}
	return s.pick(s.set.FromIn, s.set.Sideways)
}
