package memo

import (
	"log/slog"
	"sync"
)

// Service owns every cache created during wiring and tears them down together
// at shutdown. Caches are constructed explicitly and injected where needed;
// there is no package-level registry.
type Service struct {
	logger *slog.Logger

	mu      sync.Mutex
	stops   []func()
	names   []string
	stopped bool
}

// NewService creates an empty cache service. It is typically created once in
// the application wire step and closed by the cleanup stack.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger.With(slog.String("component", "memo"))}
}

func (s *Service) register(name string, stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		// Late registration after shutdown: stop immediately.
		stop()
		return
	}
	s.stops = append(s.stops, stop)
	s.names = append(s.names, name)
}

// Names returns the names of all registered caches.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Close stops all registered cache sweepers. It is safe to call multiple
// times.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for i := len(s.stops) - 1; i >= 0; i-- {
		s.stops[i]()
	}
	s.logger.Debug("cache service closed", slog.Int("caches", len(s.stops)))
	s.stops = nil
}
