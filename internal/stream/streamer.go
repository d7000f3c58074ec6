// Package stream pushes raw sensor data into a run on demand. The backend
// announces which inputs it is hungry for via io:need; the streamer pulls
// a chunk from the matching provider and ships it as io:chunk.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"brainlink/internal/model"
	"brainlink/internal/session"
)

// Chunk is one provider-produced payload. Format names the wire encoding
// of Data ("jpeg", "pcm_s16le", "raster_f32", ...); Meta rides alongside
// untouched.
type Chunk struct {
	Format string
	Meta   map[string]any
	Data   []byte
}

// Provider produces the next chunk for an input when the backend asks.
type Provider func(need model.Need) (Chunk, error)

var ErrAlreadyStarted = errors.New("stream: already started")

// Streamer routes io:need requests to registered providers. Providers are
// matched by input id first, then by kind. Sequence numbers are per input
// and monotonic for the life of the streamer.
type Streamer struct {
	run   *session.Run
	hooks session.Hooks

	mu      sync.Mutex
	byID    map[string]Provider
	byKind  map[string]Provider
	seq     map[string]int64
	started bool
}

func New(run *session.Run, hooks session.Hooks) *Streamer {
	return &Streamer{
		run:    run,
		hooks:  hooks,
		byID:   make(map[string]Provider),
		byKind: make(map[string]Provider),
		seq:    make(map[string]int64),
	}
}

// RegisterInput binds a provider to a specific input id.
func (s *Streamer) RegisterInput(id string, p Provider) error {
	if id == "" {
		return fmt.Errorf("stream: input id is required")
	}
	if p == nil {
		return fmt.Errorf("stream: provider for input %s is nil", id)
	}
	s.mu.Lock()
	s.byID[id] = p
	s.mu.Unlock()
	return nil
}

// RegisterKind binds a fallback provider for every input of a kind,
// e.g. "Camera" or "Microphone".
func (s *Streamer) RegisterKind(kind string, p Provider) error {
	if kind == "" {
		return fmt.Errorf("stream: input kind is required")
	}
	if p == nil {
		return fmt.Errorf("stream: provider for kind %s is nil", kind)
	}
	s.mu.Lock()
	s.byKind[kind] = p
	s.mu.Unlock()
	return nil
}

// Start subscribes to the run's io:need events. Calling Start twice is an
// error; the first subscription stays live.
func (s *Streamer) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()
	s.run.OnIONeed(s.Serve)
	return nil
}

// Serve satisfies one io:need request. Inputs with no matching provider
// are skipped; a provider error skips that input and is reported through
// the hooks so the rest of the batch still flows.
func (s *Streamer) Serve(need model.IONeed) {
	for _, n := range need.Needs {
		provider := s.lookup(n)
		if provider == nil {
			continue
		}
		chunk, err := provider(n)
		if err != nil {
			s.fault(fmt.Errorf("provider for input %s: %w", n.ID, err))
			continue
		}
		seq := s.nextSeq(n.ID)
		t := float64(time.Now().UnixNano()) / 1e9
		if err := s.run.SendInputChunk(n.ID, n.Kind, seq, t, chunk.Format, chunk.Meta, chunk.Data); err != nil {
			s.fault(fmt.Errorf("send chunk for input %s seq %d: %w", n.ID, seq, err))
		}
	}
}

func (s *Streamer) lookup(n model.Need) Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[n.ID]; ok {
		return p
	}
	return s.byKind[n.Kind]
}

func (s *Streamer) nextSeq(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[id]++
	return s.seq[id]
}

func (s *Streamer) fault(err error) {
	if s.hooks.OnHandlerError != nil {
		s.hooks.OnHandlerError(session.EventIOChunk, err)
	}
}
