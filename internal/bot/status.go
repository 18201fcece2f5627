package bot

import (
	"sort"
	"sync"

	"github.com/arqma/arqbot/internal/metrics"
)

// Status tracks which platform loops are connected. Readiness probes read it.
type Status struct {
	mu      sync.RWMutex
	running map[string]bool
}

func NewStatus() *Status {
	return &Status{running: make(map[string]bool)}
}

// Set records whether platform is running. A nil Status ignores updates.
func (s *Status) Set(platform string, up bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.running[platform] = up
	s.mu.Unlock()

	v := 0.0
	if up {
		v = 1
	}
	metrics.BotUp.WithLabelValues(platform).Set(v)
}

// Running lists the platforms currently up, sorted.
func (s *Status) Running() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for p, up := range s.running {
		if up {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Status) Ready() bool {
	return len(s.Running()) > 0
}
