// Package badger stores the journal in an embedded BadgerDB key-value store.
//
// Key layout:
//
//	e/<seq>               event record (JSON)
//	s/<stream>\x00<ver>   global seq of a stream's event
//	h/<stream>            stream head: version and chain hash
//	m/seq                 highest global seq
//
// Numbers are big-endian uint64 so keys sort in numeric order.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/integrity"
)

const maxConflictRetries = 5

var (
	prefixEvent  = []byte("e/")
	prefixStream = []byte("s/")
	prefixHead   = []byte("h/")
	keyHeadSeq   = []byte("m/seq")
)

// Config configures the store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in memory; used by tests.
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil silences them.
	Logger *log.Logger
}

// DefaultConfig returns durable defaults for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a config for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts log.Logger to badger's logger interface.
type badgerLogger struct {
	logger *log.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Printf("badger error: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Printf("badger warning: "+format, args...)
}

func (l badgerLogger) Infof(string, ...any) {}
func (l badgerLogger) Debugf(string, ...any) {}

// EventStore is the badger journal. It implements journal.Store.
type EventStore struct {
	db        *badger.DB
	keyring   *integrity.Keyring
	validator journal.Validator
	newID     id.Generator

	appendMu sync.Mutex
}

// Open opens the store described by cfg.
func Open(cfg Config, keyring *integrity.Keyring, validator journal.Validator) (*EventStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &EventStore{db: db, keyring: keyring, validator: validator, newID: id.NewID}, nil
}

// Close closes the database. It is nil-safe.
func (s *EventStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type eventRecord struct {
	ID             string         `json:"id"`
	Seq            uint64         `json:"seq"`
	StreamName     string         `json:"stream"`
	StreamVersion  uint64         `json:"version"`
	Type           string         `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	Payload        []byte         `json:"payload"`
	Metadata       event.Metadata `json:"metadata"`
	Hash           string         `json:"hash"`
	PrevHash       string         `json:"prevHash,omitempty"`
	ChainHash      string         `json:"chainHash"`
	Signature      string         `json:"signature,omitempty"`
	SignatureKeyID string         `json:"signatureKeyId,omitempty"`
}

func toRecord(evt event.Event) eventRecord {
	return eventRecord{
		ID:             evt.ID,
		Seq:            evt.Seq,
		StreamName:     string(evt.StreamName),
		StreamVersion:  evt.StreamVersion,
		Type:           string(evt.Type),
		Timestamp:      evt.Timestamp,
		Payload:        evt.PayloadJSON,
		Metadata:       evt.Metadata,
		Hash:           evt.Hash,
		PrevHash:       evt.PrevHash,
		ChainHash:      evt.ChainHash,
		Signature:      evt.Signature,
		SignatureKeyID: evt.SignatureKeyID,
	}
}

func (r eventRecord) event() event.Event {
	return event.Event{
		ID:             r.ID,
		Seq:            r.Seq,
		StreamName:     event.StreamName(r.StreamName),
		StreamVersion:  r.StreamVersion,
		Type:           event.Type(r.Type),
		Timestamp:      r.Timestamp.UTC(),
		PayloadJSON:    r.Payload,
		Metadata:       r.Metadata,
		Hash:           r.Hash,
		PrevHash:       r.PrevHash,
		ChainHash:      r.ChainHash,
		Signature:      r.Signature,
		SignatureKeyID: r.SignatureKeyID,
	}
}

type streamHead struct {
	Version   uint64 `json:"version"`
	ChainHash string `json:"chainHash"`
}

func uint64Bytes(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func eventKey(seq uint64) []byte {
	return append(append([]byte(nil), prefixEvent...), uint64Bytes(seq)...)
}

func streamPrefix(stream event.StreamName) []byte {
	key := append(append([]byte(nil), prefixStream...), string(stream)...)
	return append(key, 0)
}

func streamKey(stream event.StreamName, version uint64) []byte {
	return append(streamPrefix(stream), uint64Bytes(version)...)
}

func headKey(stream event.StreamName) []byte {
	return append(append([]byte(nil), prefixHead...), string(stream)...)
}

// Append implements journal.Store.
func (s *EventStore) Append(ctx context.Context, stream event.StreamName, expected journal.ExpectedVersion, events []event.Event) (uint64, []event.Event, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if s == nil || s.db == nil {
		return 0, nil, fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return 0, nil, fmt.Errorf("append requires at least one event")
	}
	prepared := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if evt.StreamName == "" {
			evt.StreamName = stream
		}
		if evt.StreamName != stream {
			return 0, nil, fmt.Errorf("event stream %s does not match append stream %s", evt.StreamName, stream)
		}
		if s.validator != nil {
			validated, err := s.validator.ValidateForAppend(evt)
			if err != nil {
				return 0, nil, err
			}
			evt = validated
		}
		evt.Timestamp = evt.Timestamp.UTC()
		prepared = append(prepared, evt)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	for attempt := 0; ; attempt++ {
		version, stored, err := s.appendOnce(stream, expected, prepared)
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			if err := ctx.Err(); err != nil {
				return 0, nil, err
			}
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		return version, stored, nil
	}
}

func (s *EventStore) appendOnce(stream event.StreamName, expected journal.ExpectedVersion, prepared []event.Event) (uint64, []event.Event, error) {
	var (
		version uint64
		stored  []event.Event
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		head, err := readHead(txn, stream)
		if err != nil {
			return err
		}
		if err := expected.Check(stream, head.Version); err != nil {
			return err
		}
		seq, err := readHeadSeq(txn)
		if err != nil {
			return err
		}

		version = head.Version
		prevChain := head.ChainHash
		stored = make([]event.Event, 0, len(prepared))
		for _, evt := range prepared {
			eventID, err := s.newID()
			if err != nil {
				return fmt.Errorf("generate event id: %w", err)
			}
			version++
			seq++
			evt.ID = eventID
			evt.Seq = seq
			evt.StreamVersion = version
			if err := journal.Stamp(&evt, prevChain); err != nil {
				return err
			}
			if err := integrity.Sign(s.keyring, &evt); err != nil {
				return err
			}
			data, err := json.Marshal(toRecord(evt))
			if err != nil {
				return fmt.Errorf("encode event %s v%d: %w", stream, version, err)
			}
			if err := txn.Set(eventKey(seq), data); err != nil {
				return err
			}
			if err := txn.Set(streamKey(stream, version), uint64Bytes(seq)); err != nil {
				return err
			}
			prevChain = evt.ChainHash
			stored = append(stored, evt)
		}

		headData, err := json.Marshal(streamHead{Version: version, ChainHash: prevChain})
		if err != nil {
			return err
		}
		if err := txn.Set(headKey(stream), headData); err != nil {
			return err
		}
		return txn.Set(keyHeadSeq, uint64Bytes(seq))
	})
	if err != nil {
		return 0, nil, err
	}
	return version, stored, nil
}

func readHead(txn *badger.Txn, stream event.StreamName) (streamHead, error) {
	item, err := txn.Get(headKey(stream))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return streamHead{}, nil
	}
	if err != nil {
		return streamHead{}, fmt.Errorf("read stream head %s: %w", stream, err)
	}
	var head streamHead
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &head)
	})
	if err != nil {
		return streamHead{}, fmt.Errorf("decode stream head %s: %w", stream, err)
	}
	return head, nil
}

func readHeadSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(keyHeadSeq)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read head seq: %w", err)
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("head seq has %d bytes", len(val))
		}
		seq = binary.BigEndian.Uint64(val)
		return nil
	})
	return seq, err
}

func readEvent(txn *badger.Txn, seq uint64) (event.Event, error) {
	item, err := txn.Get(eventKey(seq))
	if err != nil {
		return event.Event{}, fmt.Errorf("read event %d: %w", seq, err)
	}
	var record eventRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("decode event %d: %w", seq, err)
	}
	return record.event(), nil
}

// ReadStream implements journal.Store.
func (s *EventStore) ReadStream(ctx context.Context, stream event.StreamName, fromVersion uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if fromVersion == 0 {
		fromVersion = 1
	}
	var events []event.Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = streamPrefix(stream)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(streamKey(stream, fromVersion)); it.Valid(); it.Next() {
			if limit > 0 && len(events) >= limit {
				return nil
			}
			var seq uint64
			if err := it.Item().Value(func(val []byte) error {
				seq = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
			evt, err := readEvent(txn, seq)
			if err != nil {
				return err
			}
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	return events, nil
}

// ReadAll implements journal.Store.
func (s *EventStore) ReadAll(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	var events []event.Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixEvent
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(eventKey(afterSeq + 1)); it.Valid(); it.Next() {
			if limit > 0 && len(events) >= limit {
				return nil
			}
			var record eventRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}
			events = append(events, record.event())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read events after %d: %w", afterSeq, err)
	}
	return events, nil
}

// StreamVersion implements journal.Store.
func (s *EventStore) StreamVersion(ctx context.Context, stream event.StreamName) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var head streamHead
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		head, err = readHead(txn, stream)
		return err
	})
	return head.Version, err
}

// HeadSeq implements journal.Store.
func (s *EventStore) HeadSeq(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		seq, err = readHeadSeq(txn)
		return err
	})
	return seq, err
}

// ListStreams returns every stream name, sorted.
func (s *EventStore) ListStreams(ctx context.Context) ([]event.StreamName, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	var streams []event.StreamName
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixHead
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			streams = append(streams, event.StreamName(key[len(prefixHead):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return streams, nil
}

// VerifyIntegrity recomputes the hash chain and signatures of every stream.
func (s *EventStore) VerifyIntegrity(ctx context.Context) (integrity.Report, error) {
	streams, err := s.ListStreams(ctx)
	if err != nil {
		return integrity.Report{}, err
	}
	return integrity.VerifyStreams(ctx, s.keyring, s, streams)
}
