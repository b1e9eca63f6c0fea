package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/contentgraph/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/sqlite/migrations"
)

var (
	_ storage.ProjectionStore    = (*ProjectionStore)(nil)
	_ storage.ContentGraphReader = (*ProjectionStore)(nil)
	_ storage.HiddenStateReader  = (*ProjectionStore)(nil)
	_ storage.WorkspaceReader    = (*ProjectionStore)(nil)
	_ storage.ProjectionTx       = projectionQueries{}
)

// projectionTables lists the tables each projection owns, in delete order.
var projectionTables = map[string][]string{
	storage.ProjectionContentGraph: {"cg_restrictions", "cg_references", "cg_coverage", "cg_nodes", "cg_content_streams"},
	storage.ProjectionHiddenState:  {"hs_node_hidden_state"},
	storage.ProjectionWorkspace:    {"ws_workspaces"},
}

// ProjectionStore holds every projection table of the projections database.
// Reads run directly against the database; writes go through
// ApplyExactlyOnce.
type ProjectionStore struct {
	projectionQueries
	sqlDB *sql.DB
	now   func() time.Time

	// writeMu keeps projections of this process from racing for the single
	// SQLite writer slot.
	writeMu sync.Mutex
}

// OpenProjections opens the projections database at path and applies
// migrations.
func OpenProjections(ctx context.Context, path string) (*ProjectionStore, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.ProjectionsFS, "projections")
	if err != nil {
		return nil, err
	}
	return &ProjectionStore{
		projectionQueries: projectionQueries{q: sqlDB},
		sqlDB:             sqlDB,
		now:               time.Now,
	}, nil
}

// Close closes the underlying database. It is nil-safe.
func (s *ProjectionStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// ApplyExactlyOnce implements storage.ProjectionStore.
func (s *ProjectionStore) ApplyExactlyOnce(ctx context.Context, projection string, seq uint64, fn func(context.Context, storage.ProjectionTx) error) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return false, fmt.Errorf("projection apply callback is required")
	}
	if strings.TrimSpace(projection) == "" {
		return false, fmt.Errorf("projection name is required")
	}
	if seq == 0 {
		return false, fmt.Errorf("event sequence must be greater than zero")
	}

	const (
		maxBusyRetries = 8
		retryBaseDelay = 10 * time.Millisecond
	)

	waitForRetry := func(attempt int) error {
		delay := time.Duration(attempt+1) * retryBaseDelay
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var lastBusyErr error
	for attempt := 0; ; attempt++ {
		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			if isSQLiteBusyError(err) && attempt < maxBusyRetries {
				lastBusyErr = err
				if waitErr := waitForRetry(attempt); waitErr != nil {
					return false, waitErr
				}
				continue
			}
			return false, fmt.Errorf("begin projection apply tx: %w", err)
		}

		applied, retry, err := func() (bool, bool, error) {
			defer tx.Rollback()

			current, err := readCheckpoint(ctx, tx, projection)
			if err != nil {
				if isSQLiteBusyError(err) {
					lastBusyErr = err
					return false, true, nil
				}
				return false, false, err
			}
			if seq <= current {
				return false, false, nil
			}

			if err := fn(ctx, projectionQueries{q: tx}); err != nil {
				if isSQLiteBusyError(err) {
					lastBusyErr = err
					return false, true, nil
				}
				return false, false, err
			}
			if err := writeCheckpoint(ctx, tx, projection, seq, s.now()); err != nil {
				if isSQLiteBusyError(err) {
					lastBusyErr = err
					return false, true, nil
				}
				return false, false, err
			}

			if err := tx.Commit(); err != nil {
				if isSQLiteBusyError(err) {
					lastBusyErr = err
					return false, true, nil
				}
				return false, false, fmt.Errorf("commit projection apply tx: %w", err)
			}
			return true, false, nil
		}()
		if retry {
			if attempt < maxBusyRetries {
				if waitErr := waitForRetry(attempt); waitErr != nil {
					return false, waitErr
				}
				continue
			}
			return false, fmt.Errorf("projection %s apply at seq %d remained busy: %w", projection, seq, lastBusyErr)
		}
		return applied, err
	}
}

// Checkpoint implements storage.ProjectionStore. A projection that never
// applied anything is at zero.
func (s *ProjectionStore) Checkpoint(ctx context.Context, projection string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	return readCheckpoint(ctx, s.sqlDB, projection)
}

// SetCheckpoint implements storage.ProjectionStore. It only moves forward.
func (s *ProjectionStore) SetCheckpoint(ctx context.Context, projection string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeCheckpoint(ctx, s.sqlDB, projection, seq, s.now())
}

// ResetProjection implements storage.ProjectionStore.
func (s *ProjectionStore) ResetProjection(ctx context.Context, projection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tables, ok := projectionTables[projection]
	if !ok {
		return fmt.Errorf("unknown projection %q", projection)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projection_checkpoints WHERE projection = ?`, projection); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", projection, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset tx: %w", err)
	}
	return nil
}

func readCheckpoint(ctx context.Context, q queryer, projection string) (uint64, error) {
	var seq int64
	err := q.QueryRowContext(ctx, `SELECT seq FROM projection_checkpoints WHERE projection = ?`, projection).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint %s: %w", projection, err)
	}
	return uint64(seq), nil
}

func writeCheckpoint(ctx context.Context, q queryer, projection string, seq uint64, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (projection, seq, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(projection) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at
		 WHERE excluded.seq > projection_checkpoints.seq`,
		projection, int64(seq), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", projection, err)
	}
	return nil
}

// projectionQueries runs projection reads and writes against either the
// database or an open transaction.
type projectionQueries struct {
	q queryer
}
