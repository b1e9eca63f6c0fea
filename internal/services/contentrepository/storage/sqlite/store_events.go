package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/integrity"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/sqlite/migrations"
)

const eventColumns = `seq, event_id, stream_name, stream_version, event_type, timestamp, payload_json,
	metadata_json, event_hash, prev_event_hash, chain_hash, signature_key_id, event_signature`

// EventStore is the SQLite journal. It implements journal.Store.
type EventStore struct {
	sqlDB     *sql.DB
	keyring   *integrity.Keyring
	validator journal.Validator
	newID     id.Generator

	// appendMu serializes appends from this process; the unique
	// (stream_name, stream_version) key guards against other writers.
	appendMu sync.Mutex
}

// OpenEvents opens the events database at path and applies migrations.
// A nil keyring stores unsigned events; a nil validator stores events as
// given.
func OpenEvents(ctx context.Context, path string, keyring *integrity.Keyring, validator journal.Validator) (*EventStore, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.EventsFS, "events")
	if err != nil {
		return nil, err
	}
	return &EventStore{
		sqlDB:     sqlDB,
		keyring:   keyring,
		validator: validator,
		newID:     id.NewID,
	}, nil
}

// Close closes the underlying database. It is nil-safe.
func (s *EventStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Append implements journal.Store.
func (s *EventStore) Append(ctx context.Context, stream event.StreamName, expected journal.ExpectedVersion, events []event.Event) (uint64, []event.Event, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if s == nil || s.sqlDB == nil {
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
		// The column keeps milliseconds; hash what will be read back.
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		prepared = append(prepared, evt)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	var (
		version   uint64
		prevChain string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT stream_version, chain_hash FROM events WHERE stream_name = ? ORDER BY stream_version DESC LIMIT 1`,
		string(stream),
	).Scan(&version, &prevChain)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("read stream head %s: %w", stream, err)
	}
	if err := expected.Check(stream, version); err != nil {
		return 0, nil, err
	}
	var head uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&head); err != nil {
		return 0, nil, fmt.Errorf("read head seq: %w", err)
	}

	stored := make([]event.Event, 0, len(prepared))
	for _, evt := range prepared {
		eventID, err := s.newID()
		if err != nil {
			return 0, nil, fmt.Errorf("generate event id: %w", err)
		}
		version++
		head++
		evt.ID = eventID
		evt.Seq = head
		evt.StreamVersion = version
		if err := journal.Stamp(&evt, prevChain); err != nil {
			return 0, nil, err
		}
		if err := integrity.Sign(s.keyring, &evt); err != nil {
			return 0, nil, err
		}
		if err := insertEvent(ctx, tx, evt); err != nil {
			if isConstraintError(err) {
				return 0, nil, fmt.Errorf("%w: stream %s version %d already stored", journal.ErrConcurrency, stream, version)
			}
			return 0, nil, err
		}
		prevChain = evt.ChainHash
		stored = append(stored, evt)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit append tx: %w", err)
	}
	return version, stored, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	metadata, err := json.Marshal(evt.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(evt.Seq),
		evt.ID,
		string(evt.StreamName),
		int64(evt.StreamVersion),
		string(evt.Type),
		toMillis(evt.Timestamp),
		evt.PayloadJSON,
		metadata,
		evt.Hash,
		evt.PrevHash,
		evt.ChainHash,
		evt.SignatureKeyID,
		evt.Signature,
	)
	if err != nil {
		return fmt.Errorf("insert event %s v%d: %w", evt.StreamName, evt.StreamVersion, err)
	}
	return nil
}

// ReadStream implements journal.Store.
func (s *EventStore) ReadStream(ctx context.Context, stream event.StreamName, fromVersion uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if fromVersion == 0 {
		fromVersion = 1
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE stream_name = ? AND stream_version >= ? ORDER BY stream_version LIMIT ?`,
		string(stream), int64(fromVersion), sqlLimit(limit),
	)
}

// ReadAll implements journal.Store.
func (s *EventStore) ReadAll(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE seq > ? ORDER BY seq LIMIT ?`,
		int64(afterSeq), sqlLimit(limit),
	)
}

// StreamVersion implements journal.Store.
func (s *EventStore) StreamVersion(ctx context.Context, stream event.StreamName) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var version uint64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(stream_version), 0) FROM events WHERE stream_name = ?`,
		string(stream),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read stream version %s: %w", stream, err)
	}
	return version, nil
}

// HeadSeq implements journal.Store.
func (s *EventStore) HeadSeq(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var head uint64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&head); err != nil {
		return 0, fmt.Errorf("read head seq: %w", err)
	}
	return head, nil
}

// ListStreams returns every stream name in the journal, sorted.
func (s *EventStore) ListStreams(ctx context.Context) ([]event.StreamName, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT stream_name FROM events ORDER BY stream_name`)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()
	var streams []event.StreamName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan stream name: %w", err)
		}
		streams = append(streams, event.StreamName(name))
	}
	return streams, rows.Err()
}

// VerifyIntegrity recomputes the hash chain and signatures of every stream.
func (s *EventStore) VerifyIntegrity(ctx context.Context) (integrity.Report, error) {
	streams, err := s.ListStreams(ctx)
	if err != nil {
		return integrity.Report{}, err
	}
	return integrity.VerifyStreams(ctx, s.keyring, s, streams)
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		evt           event.Event
		seq, version  int64
		stream, typ   string
		timestamp     int64
		metadataBytes []byte
	)
	err := rows.Scan(
		&seq,
		&evt.ID,
		&stream,
		&version,
		&typ,
		&timestamp,
		&evt.PayloadJSON,
		&metadataBytes,
		&evt.Hash,
		&evt.PrevHash,
		&evt.ChainHash,
		&evt.SignatureKeyID,
		&evt.Signature,
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &evt.Metadata); err != nil {
			return event.Event{}, fmt.Errorf("decode metadata of seq %d: %w", seq, err)
		}
	}
	evt.Seq = uint64(seq)
	evt.StreamName = event.StreamName(stream)
	evt.StreamVersion = uint64(version)
	evt.Type = event.Type(typ)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
