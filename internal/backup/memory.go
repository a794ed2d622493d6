package backup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// memorySink keeps snapshots in process memory. Intended for tests.
type memorySink struct {
	mu   sync.RWMutex
	objs map[string][]byte
	seq  int
}

// NewMemory returns an in-memory sink.
func NewMemory() Sink { return &memorySink{objs: make(map[string][]byte)} }

func (s *memorySink) Driver() Driver { return DriverMemory }

func (s *memorySink) Write(_ context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A sequence suffix keeps refs unique even within one clock tick.
	s.seq++
	ref := fmt.Sprintf("%s.%d", timestampRef(key, time.Now()), s.seq)
	b := make([]byte, len(data))
	copy(b, data)
	s.objs[ref] = b
	return ref, nil
}

func (s *memorySink) Read(_ context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objs[ref]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found", ref)
	}
	b := make([]byte, len(data))
	copy(b, data)
	return b, nil
}

func (s *memorySink) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []string
	for ref := range s.objs {
		if strings.HasPrefix(ref, prefix) {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs, nil
}
