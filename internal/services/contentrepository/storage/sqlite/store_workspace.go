package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

const workspaceColumns = `workspace_name, base_workspace_name, title, description, owner,
	current_content_stream_id, status, version, last_failure_json, updated_at`

func scanWorkspace(row rowScanner) (storage.WorkspaceRecord, error) {
	var (
		r                  storage.WorkspaceRecord
		name, base, owner  string
		current, status    string
		version, updatedAt int64
		lastFailure        []byte
	)
	if err := row.Scan(&name, &base, &r.Title, &r.Description, &owner, &current, &status, &version, &lastFailure, &updatedAt); err != nil {
		return storage.WorkspaceRecord{}, err
	}
	r.Name = ids.WorkspaceName(name)
	r.BaseName = ids.WorkspaceName(base)
	r.Owner = ids.UserID(owner)
	r.CurrentContentStreamID = ids.ContentStreamID(current)
	r.Status = storage.WorkspaceStatus(status)
	r.Version = uint64(version)
	r.LastFailureJSON = lastFailure
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

// GetWorkspace implements storage.WorkspaceReader.
func (p projectionQueries) GetWorkspace(ctx context.Context, name ids.WorkspaceName) (storage.WorkspaceRecord, error) {
	row := p.q.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM ws_workspaces WHERE workspace_name = ?`, string(name))
	r, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.WorkspaceRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.WorkspaceRecord{}, fmt.Errorf("read workspace %s: %w", name, err)
	}
	return r, nil
}

// ListWorkspaces implements storage.WorkspaceReader.
func (p projectionQueries) ListWorkspaces(ctx context.Context) ([]storage.WorkspaceRecord, error) {
	return p.workspaces(ctx, `SELECT `+workspaceColumns+` FROM ws_workspaces ORDER BY workspace_name`)
}

// ListDependentWorkspaces implements storage.WorkspaceReader.
func (p projectionQueries) ListDependentWorkspaces(ctx context.Context, base ids.WorkspaceName) ([]storage.WorkspaceRecord, error) {
	return p.workspaces(ctx,
		`SELECT `+workspaceColumns+` FROM ws_workspaces WHERE base_workspace_name = ? ORDER BY workspace_name`,
		string(base),
	)
}

func (p projectionQueries) workspaces(ctx context.Context, query string, args ...any) ([]storage.WorkspaceRecord, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()
	var records []storage.WorkspaceRecord
	for rows.Next() {
		r, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return records, nil
}

// PutWorkspace implements storage.WorkspaceWriter.
func (p projectionQueries) PutWorkspace(ctx context.Context, r storage.WorkspaceRecord) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO ws_workspaces (`+workspaceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workspace_name) DO UPDATE SET
			base_workspace_name = excluded.base_workspace_name,
			title = excluded.title,
			description = excluded.description,
			owner = excluded.owner,
			current_content_stream_id = excluded.current_content_stream_id,
			status = excluded.status,
			version = excluded.version,
			last_failure_json = excluded.last_failure_json,
			updated_at = excluded.updated_at`,
		string(r.Name),
		string(r.BaseName),
		r.Title,
		r.Description,
		string(r.Owner),
		string(r.CurrentContentStreamID),
		string(r.Status),
		int64(r.Version),
		r.LastFailureJSON,
		toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put workspace %s: %w", r.Name, err)
	}
	return nil
}

// MarkDependentsOutdated implements storage.WorkspaceWriter.
func (p projectionQueries) MarkDependentsOutdated(ctx context.Context, base, except ids.WorkspaceName, at time.Time) error {
	_, err := p.q.ExecContext(ctx,
		`UPDATE ws_workspaces SET status = ?, updated_at = ?
		 WHERE base_workspace_name = ? AND workspace_name <> ?`,
		string(storage.WorkspaceOutdated), toMillis(at), string(base), string(except),
	)
	if err != nil {
		return fmt.Errorf("mark dependents of %s outdated: %w", base, err)
	}
	return nil
}
