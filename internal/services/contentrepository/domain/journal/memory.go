package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
)

// Memory is an in-memory store guarded by a mutex.
type Memory struct {
	mu        sync.RWMutex
	validator Validator
	events    []event.Event
	streams   map[event.StreamName][]int
	newID     id.Generator
}

// NewMemory creates an empty in-memory store. A nil validator stores events
// as given.
func NewMemory(validator Validator) *Memory {
	return &Memory{
		validator: validator,
		streams:   make(map[event.StreamName][]int),
		newID:     id.NewID,
	}
}

// Append implements Store.
func (m *Memory) Append(ctx context.Context, stream event.StreamName, expected ExpectedVersion, events []event.Event) (uint64, []event.Event, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if m == nil {
		return 0, nil, errors.New("journal is not configured")
	}
	if len(events) == 0 {
		return 0, nil, errors.New("append requires at least one event")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	positions := m.streams[stream]
	version := uint64(len(positions))
	if err := expected.Check(stream, version); err != nil {
		return 0, nil, err
	}
	prevChain := ""
	if len(positions) > 0 {
		prevChain = m.events[positions[len(positions)-1]].ChainHash
	}

	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if evt.StreamName == "" {
			evt.StreamName = stream
		}
		if evt.StreamName != stream {
			return 0, nil, fmt.Errorf("event stream %s does not match append stream %s", evt.StreamName, stream)
		}
		if m.validator != nil {
			validated, err := m.validator.ValidateForAppend(evt)
			if err != nil {
				return 0, nil, err
			}
			evt = validated
		}
		eventID, err := m.newID()
		if err != nil {
			return 0, nil, err
		}
		version++
		evt.ID = eventID
		evt.Seq = uint64(len(m.events)+len(stored)) + 1
		evt.StreamVersion = version
		if err := Stamp(&evt, prevChain); err != nil {
			return 0, nil, err
		}
		prevChain = evt.ChainHash
		stored = append(stored, evt)
	}

	for _, evt := range stored {
		m.streams[stream] = append(m.streams[stream], len(m.events))
		m.events = append(m.events, evt)
	}
	return version, append([]event.Event(nil), stored...), nil
}

// Stamp sets the event hash and links it to the previous chain hash of its
// stream. Stores call it after assigning the stream version.
func Stamp(evt *event.Event, prevChain string) error {
	hash, err := event.EventHash(*evt)
	if err != nil {
		return fmt.Errorf("event hash: %w", err)
	}
	evt.Hash = hash
	evt.PrevHash = prevChain
	chain, err := event.ChainHash(*evt, prevChain)
	if err != nil {
		return fmt.Errorf("chain hash: %w", err)
	}
	evt.ChainHash = chain
	return nil
}

// ReadStream implements Store.
func (m *Memory) ReadStream(ctx context.Context, stream event.StreamName, fromVersion uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if fromVersion == 0 {
		fromVersion = 1
	}
	positions := m.streams[stream]
	var out []event.Event
	for _, pos := range positions {
		evt := m.events[pos]
		if evt.StreamVersion < fromVersion {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ReadAll implements Store.
func (m *Memory) ReadAll(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := sort.Search(len(m.events), func(i int) bool { return m.events[i].Seq > afterSeq })
	end := len(m.events)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return append([]event.Event(nil), m.events[start:end]...), nil
}

// StreamVersion implements Store.
func (m *Memory) StreamVersion(ctx context.Context, stream event.StreamName) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.streams[stream])), nil
}

// HeadSeq implements Store.
func (m *Memory) HeadSeq(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.events)), nil
}
