package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
)

// IsHidden implements storage.HiddenStateReader. A missing row reads as
// visible.
func (p projectionQueries) IsHidden(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, point dimension.Point) (bool, error) {
	var hidden bool
	err := p.q.QueryRowContext(ctx,
		`SELECT hidden FROM hs_node_hidden_state
		 WHERE content_stream_id = ? AND node_aggregate_id = ? AND dimension_space_point_hash = ?`,
		string(cs), string(aggregate), point.Hash(),
	).Scan(&hidden)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read hidden state %s@%s: %w", aggregate, point, err)
	}
	return hidden, nil
}

// CopyHiddenState implements storage.HiddenStateWriter.
func (p projectionQueries) CopyHiddenState(ctx context.Context, source, target ids.ContentStreamID) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO hs_node_hidden_state (content_stream_id, node_aggregate_id, dimension_space_point_hash, dimension_space_point, hidden)
		 SELECT ?, node_aggregate_id, dimension_space_point_hash, dimension_space_point, hidden
		 FROM hs_node_hidden_state WHERE content_stream_id = ?`,
		string(target), string(source),
	)
	if err != nil {
		return fmt.Errorf("copy hidden state from %s to %s: %w", source, target, err)
	}
	return nil
}

// MarkHidden implements storage.HiddenStateWriter.
func (p projectionQueries) MarkHidden(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error {
	for _, point := range points.Points() {
		_, err := p.q.ExecContext(ctx,
			`INSERT INTO hs_node_hidden_state (content_stream_id, node_aggregate_id, dimension_space_point_hash, dimension_space_point, hidden)
			 VALUES (?, ?, ?, ?, 1)
			 ON CONFLICT(content_stream_id, node_aggregate_id, dimension_space_point_hash) DO UPDATE SET hidden = 1`,
			string(cs), string(aggregate), point.Hash(), point.String(),
		)
		if err != nil {
			return fmt.Errorf("hide %s@%s: %w", aggregate, point, err)
		}
	}
	return nil
}

// ClearHidden implements storage.HiddenStateWriter.
func (p projectionQueries) ClearHidden(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error {
	for _, point := range points.Points() {
		_, err := p.q.ExecContext(ctx,
			`DELETE FROM hs_node_hidden_state
			 WHERE content_stream_id = ? AND node_aggregate_id = ? AND dimension_space_point_hash = ?`,
			string(cs), string(aggregate), point.Hash(),
		)
		if err != nil {
			return fmt.Errorf("unhide %s@%s: %w", aggregate, point, err)
		}
	}
	return nil
}

// MoveHiddenStatePoint implements storage.HiddenStateWriter.
func (p projectionQueries) MoveHiddenStatePoint(ctx context.Context, cs ids.ContentStreamID, source, target dimension.Point) error {
	_, err := p.q.ExecContext(ctx,
		`UPDATE hs_node_hidden_state SET dimension_space_point_hash = ?, dimension_space_point = ?
		 WHERE content_stream_id = ? AND dimension_space_point_hash = ?`,
		target.Hash(), target.String(), string(cs), source.Hash(),
	)
	if err != nil {
		return fmt.Errorf("move hidden state from %s to %s: %w", source, target, err)
	}
	return nil
}
