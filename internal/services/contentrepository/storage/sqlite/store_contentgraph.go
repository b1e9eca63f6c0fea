package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// subtreeAt selects an aggregate and every descendant reachable through
// coverage at one point. Bind: aggregate, content stream, point hash.
const subtreeAt = `WITH RECURSIVE subtree(node_aggregate_id) AS (
	SELECT ?
	UNION
	SELECT c.node_aggregate_id FROM cg_coverage c
	JOIN subtree s ON c.parent_node_aggregate_id = s.node_aggregate_id
	WHERE c.content_stream_id = ? AND c.point_hash = ?
)
`

// GetContentStream implements storage.ContentGraphWriter.
func (p projectionQueries) GetContentStream(ctx context.Context, cs ids.ContentStreamID) (storage.ContentStreamRecord, error) {
	return p.ContentStream(ctx, cs)
}

// PutContentStream implements storage.ContentGraphWriter.
func (p projectionQueries) PutContentStream(ctx context.Context, r storage.ContentStreamRecord) error {
	_, err := p.q.ExecContext(ctx,
		`INSERT INTO cg_content_streams (content_stream_id, source_content_stream_id, source_version, version, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(content_stream_id) DO UPDATE SET
			source_content_stream_id = excluded.source_content_stream_id,
			source_version = excluded.source_version,
			version = excluded.version,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		string(r.ID),
		string(r.SourceID),
		int64(r.SourceVersion),
		int64(r.Version),
		string(r.State),
		toMillis(r.CreatedAt),
		toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put content stream %s: %w", r.ID, err)
	}
	return nil
}

// CopyContentStream implements storage.ContentGraphWriter.
func (p projectionQueries) CopyContentStream(ctx context.Context, source, target ids.ContentStreamID) error {
	statements := []struct {
		table string
		query string
	}{
		{"cg_nodes", `INSERT INTO cg_nodes (content_stream_id, node_aggregate_id, origin_point_hash, origin_point, node_type_name, classification, node_name, properties_json, created_at, last_modified_at)
			SELECT ?, node_aggregate_id, origin_point_hash, origin_point, node_type_name, classification, node_name, properties_json, created_at, last_modified_at
			FROM cg_nodes WHERE content_stream_id = ?`},
		{"cg_coverage", `INSERT INTO cg_coverage (content_stream_id, node_aggregate_id, point_hash, point, origin_point_hash, parent_node_aggregate_id)
			SELECT ?, node_aggregate_id, point_hash, point, origin_point_hash, parent_node_aggregate_id
			FROM cg_coverage WHERE content_stream_id = ?`},
		{"cg_references", `INSERT INTO cg_references (content_stream_id, source_node_aggregate_id, source_origin_point_hash, reference_name, position, target_node_aggregate_id, properties_json)
			SELECT ?, source_node_aggregate_id, source_origin_point_hash, reference_name, position, target_node_aggregate_id, properties_json
			FROM cg_references WHERE content_stream_id = ?`},
		{"cg_restrictions", `INSERT INTO cg_restrictions (content_stream_id, node_aggregate_id, point_hash, point, disabled_by)
			SELECT ?, node_aggregate_id, point_hash, point, disabled_by
			FROM cg_restrictions WHERE content_stream_id = ?`},
	}
	for _, stmt := range statements {
		if _, err := p.q.ExecContext(ctx, stmt.query, string(target), string(source)); err != nil {
			return fmt.Errorf("copy %s from %s to %s: %w", stmt.table, source, target, err)
		}
	}
	return nil
}

// InsertNodeVariant implements storage.ContentGraphWriter.
func (p projectionQueries) InsertNodeVariant(ctx context.Context, r storage.NodeVariantRecord) error {
	properties, err := r.Properties.Canonical()
	if err != nil {
		return fmt.Errorf("encode properties of %s: %w", r.AggregateID, err)
	}
	origin := r.Origin.ToPoint()
	_, err = p.q.ExecContext(ctx,
		`INSERT INTO cg_nodes (content_stream_id, node_aggregate_id, origin_point_hash, origin_point, node_type_name, classification, node_name, properties_json, created_at, last_modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.ContentStreamID),
		string(r.AggregateID),
		origin.Hash(),
		origin.String(),
		string(r.NodeType),
		string(r.Classification),
		string(r.Name),
		properties,
		toMillis(r.CreatedAt),
		toMillis(r.LastModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("insert variant %s@%s: %w", r.AggregateID, origin, err)
	}
	return nil
}

// CopyNodeVariant implements storage.ContentGraphWriter.
func (p projectionQueries) CopyNodeVariant(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, source, target dimension.OriginPoint, at time.Time) error {
	from, to := source.ToPoint(), target.ToPoint()
	result, err := p.q.ExecContext(ctx,
		`INSERT INTO cg_nodes (content_stream_id, node_aggregate_id, origin_point_hash, origin_point, node_type_name, classification, node_name, properties_json, created_at, last_modified_at)
		 SELECT content_stream_id, node_aggregate_id, ?, ?, node_type_name, classification, node_name, properties_json, ?, ?
		 FROM cg_nodes WHERE content_stream_id = ? AND node_aggregate_id = ? AND origin_point_hash = ?`,
		to.Hash(), to.String(), toMillis(at), toMillis(at),
		string(cs), string(aggregate), from.Hash(),
	)
	if err != nil {
		return fmt.Errorf("copy variant %s from %s to %s: %w", aggregate, from, to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("inspect variant copy %s: %w", aggregate, err)
	}
	if affected == 0 {
		return fmt.Errorf("variant %s@%s: %w", aggregate, from, storage.ErrNotFound)
	}
	_, err = p.q.ExecContext(ctx,
		`INSERT INTO cg_references (content_stream_id, source_node_aggregate_id, source_origin_point_hash, reference_name, position, target_node_aggregate_id, properties_json)
		 SELECT content_stream_id, source_node_aggregate_id, ?, reference_name, position, target_node_aggregate_id, properties_json
		 FROM cg_references WHERE content_stream_id = ? AND source_node_aggregate_id = ? AND source_origin_point_hash = ?`,
		to.Hash(), string(cs), string(aggregate), from.Hash(),
	)
	if err != nil {
		return fmt.Errorf("copy references of %s from %s to %s: %w", aggregate, from, to, err)
	}
	return nil
}

// AssignCoverage implements storage.ContentGraphWriter.
func (p projectionQueries) AssignCoverage(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, origin dimension.OriginPoint, parent ids.NodeAggregateID, points dimension.PointSet) error {
	originHash := origin.ToPoint().Hash()
	for _, point := range points.Points() {
		_, err := p.q.ExecContext(ctx,
			`INSERT INTO cg_coverage (content_stream_id, node_aggregate_id, point_hash, point, origin_point_hash, parent_node_aggregate_id)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(content_stream_id, node_aggregate_id, point_hash) DO UPDATE SET
				origin_point_hash = excluded.origin_point_hash,
				parent_node_aggregate_id = excluded.parent_node_aggregate_id`,
			string(cs), string(aggregate), point.Hash(), point.String(), originHash, string(parent),
		)
		if err != nil {
			return fmt.Errorf("assign coverage %s@%s: %w", aggregate, point, err)
		}
	}
	return nil
}

// ParentOf implements storage.ContentGraphWriter. When the variant at origin
// covers nothing, the parent of any other variant is returned.
func (p projectionQueries) ParentOf(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, origin dimension.OriginPoint) (ids.NodeAggregateID, error) {
	var parent string
	err := p.q.QueryRowContext(ctx,
		`SELECT parent_node_aggregate_id FROM cg_coverage
		 WHERE content_stream_id = ? AND node_aggregate_id = ?
		 ORDER BY (origin_point_hash = ?) DESC LIMIT 1`,
		string(cs), string(aggregate), origin.ToPoint().Hash(),
	).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("parent of %s: %w", aggregate, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read parent of %s: %w", aggregate, err)
	}
	return ids.NodeAggregateID(parent), nil
}

// InheritRestrictions implements storage.ContentGraphWriter.
func (p projectionQueries) InheritRestrictions(ctx context.Context, cs ids.ContentStreamID, parent, child ids.NodeAggregateID, points dimension.PointSet) error {
	if parent == "" {
		return nil
	}
	for _, point := range points.Points() {
		_, err := p.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO cg_restrictions (content_stream_id, node_aggregate_id, point_hash, point, disabled_by)
			 SELECT content_stream_id, ?, point_hash, point, disabled_by
			 FROM cg_restrictions WHERE content_stream_id = ? AND node_aggregate_id = ? AND point_hash = ?`,
			string(child), string(cs), string(parent), point.Hash(),
		)
		if err != nil {
			return fmt.Errorf("inherit restrictions of %s@%s: %w", child, point, err)
		}
	}
	return nil
}

// MergeNodeProperties implements storage.ContentGraphWriter.
func (p projectionQueries) MergeNodeProperties(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, origin dimension.OriginPoint, values node.PropertyValues, at time.Time) error {
	originHash := origin.ToPoint().Hash()
	var raw []byte
	err := p.q.QueryRowContext(ctx,
		`SELECT properties_json FROM cg_nodes WHERE content_stream_id = ? AND node_aggregate_id = ? AND origin_point_hash = ?`,
		string(cs), string(aggregate), originHash,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("variant %s@%s: %w", aggregate, origin.ToPoint(), storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read properties of %s: %w", aggregate, err)
	}
	current, err := node.ParsePropertyValues(raw)
	if err != nil {
		return err
	}
	merged, err := current.Merge(values).Canonical()
	if err != nil {
		return fmt.Errorf("encode properties of %s: %w", aggregate, err)
	}
	_, err = p.q.ExecContext(ctx,
		`UPDATE cg_nodes SET properties_json = ?, last_modified_at = ?
		 WHERE content_stream_id = ? AND node_aggregate_id = ? AND origin_point_hash = ?`,
		merged, toMillis(at), string(cs), string(aggregate), originHash,
	)
	if err != nil {
		return fmt.Errorf("update properties of %s: %w", aggregate, err)
	}
	return nil
}

// ReplaceReferences implements storage.ContentGraphWriter.
func (p projectionQueries) ReplaceReferences(ctx context.Context, cs ids.ContentStreamID, source ids.NodeAggregateID, origin dimension.OriginPoint, name ids.ReferenceName, references node.References, at time.Time) error {
	originHash := origin.ToPoint().Hash()
	_, err := p.q.ExecContext(ctx,
		`DELETE FROM cg_references
		 WHERE content_stream_id = ? AND source_node_aggregate_id = ? AND source_origin_point_hash = ? AND reference_name = ?`,
		string(cs), string(source), originHash, string(name),
	)
	if err != nil {
		return fmt.Errorf("clear references %s.%s: %w", source, name, err)
	}
	for position, ref := range references {
		properties, err := ref.Properties.Canonical()
		if err != nil {
			return fmt.Errorf("encode reference properties %s.%s: %w", source, name, err)
		}
		_, err = p.q.ExecContext(ctx,
			`INSERT INTO cg_references (content_stream_id, source_node_aggregate_id, source_origin_point_hash, reference_name, position, target_node_aggregate_id, properties_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(cs), string(source), originHash, string(name), position, string(ref.TargetNodeAggregateID), properties,
		)
		if err != nil {
			return fmt.Errorf("insert reference %s.%s[%d]: %w", source, name, position, err)
		}
	}
	_, err = p.q.ExecContext(ctx,
		`UPDATE cg_nodes SET last_modified_at = ?
		 WHERE content_stream_id = ? AND node_aggregate_id = ? AND origin_point_hash = ?`,
		toMillis(at), string(cs), string(source), originHash,
	)
	if err != nil {
		return fmt.Errorf("touch %s: %w", source, err)
	}
	return nil
}

// AddRestrictions implements storage.ContentGraphWriter.
func (p projectionQueries) AddRestrictions(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error {
	for _, point := range points.Points() {
		_, err := p.q.ExecContext(ctx,
			subtreeAt+`INSERT OR IGNORE INTO cg_restrictions (content_stream_id, node_aggregate_id, point_hash, point, disabled_by)
			 SELECT ?, node_aggregate_id, ?, ?, ? FROM subtree`,
			string(aggregate), string(cs), point.Hash(),
			string(cs), point.Hash(), point.String(), string(aggregate),
		)
		if err != nil {
			return fmt.Errorf("restrict %s@%s: %w", aggregate, point, err)
		}
	}
	return nil
}

// RemoveRestrictions implements storage.ContentGraphWriter.
func (p projectionQueries) RemoveRestrictions(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, points dimension.PointSet) error {
	for _, point := range points.Points() {
		_, err := p.q.ExecContext(ctx,
			`DELETE FROM cg_restrictions WHERE content_stream_id = ? AND disabled_by = ? AND point_hash = ?`,
			string(cs), string(aggregate), point.Hash(),
		)
		if err != nil {
			return fmt.Errorf("lift restriction %s@%s: %w", aggregate, point, err)
		}
	}
	return nil
}

// RemoveCoverage implements storage.ContentGraphWriter.
func (p projectionQueries) RemoveCoverage(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID, covered, occupied dimension.PointSet) error {
	for _, point := range covered.Points() {
		for _, table := range []string{"cg_restrictions", "cg_coverage"} {
			_, err := p.q.ExecContext(ctx,
				subtreeAt+`DELETE FROM `+table+`
				 WHERE content_stream_id = ? AND point_hash = ?
				 AND node_aggregate_id IN (SELECT node_aggregate_id FROM subtree)`,
				string(aggregate), string(cs), point.Hash(),
				string(cs), point.Hash(),
			)
			if err != nil {
				return fmt.Errorf("remove %s of %s@%s: %w", table, aggregate, point, err)
			}
		}
	}
	for _, origin := range occupied.Points() {
		_, err := p.q.ExecContext(ctx,
			`DELETE FROM cg_nodes WHERE content_stream_id = ? AND node_aggregate_id = ? AND origin_point_hash = ?`,
			string(cs), string(aggregate), origin.Hash(),
		)
		if err != nil {
			return fmt.Errorf("remove variant %s@%s: %w", aggregate, origin, err)
		}
	}
	return p.pruneUncovered(ctx, cs)
}

// pruneUncovered drops variants no point resolves to, then coverage and
// references left without their variant.
func (p projectionQueries) pruneUncovered(ctx context.Context, cs ids.ContentStreamID) error {
	statements := []struct {
		table string
		query string
	}{
		{"cg_nodes", `DELETE FROM cg_nodes WHERE content_stream_id = ? AND NOT EXISTS (
			SELECT 1 FROM cg_coverage c
			WHERE c.content_stream_id = cg_nodes.content_stream_id
			AND c.node_aggregate_id = cg_nodes.node_aggregate_id
			AND c.origin_point_hash = cg_nodes.origin_point_hash)`},
		{"cg_coverage", `DELETE FROM cg_coverage WHERE content_stream_id = ? AND NOT EXISTS (
			SELECT 1 FROM cg_nodes n
			WHERE n.content_stream_id = cg_coverage.content_stream_id
			AND n.node_aggregate_id = cg_coverage.node_aggregate_id
			AND n.origin_point_hash = cg_coverage.origin_point_hash)`},
		{"cg_references", `DELETE FROM cg_references WHERE content_stream_id = ? AND NOT EXISTS (
			SELECT 1 FROM cg_nodes n
			WHERE n.content_stream_id = cg_references.content_stream_id
			AND n.node_aggregate_id = cg_references.source_node_aggregate_id
			AND n.origin_point_hash = cg_references.source_origin_point_hash)`},
	}
	for _, stmt := range statements {
		if _, err := p.q.ExecContext(ctx, stmt.query, string(cs)); err != nil {
			return fmt.Errorf("prune %s in %s: %w", stmt.table, cs, err)
		}
	}
	return nil
}

// MovePoint implements storage.ContentGraphWriter.
func (p projectionQueries) MovePoint(ctx context.Context, cs ids.ContentStreamID, source, target dimension.Point) error {
	from, toHash, toRaw := source.Hash(), target.Hash(), target.String()
	statements := []struct {
		table string
		query string
		args  []any
	}{
		{"cg_nodes", `UPDATE cg_nodes SET origin_point_hash = ?, origin_point = ? WHERE content_stream_id = ? AND origin_point_hash = ?`,
			[]any{toHash, toRaw, string(cs), from}},
		{"cg_coverage", `UPDATE cg_coverage SET point_hash = ?, point = ? WHERE content_stream_id = ? AND point_hash = ?`,
			[]any{toHash, toRaw, string(cs), from}},
		{"cg_coverage", `UPDATE cg_coverage SET origin_point_hash = ? WHERE content_stream_id = ? AND origin_point_hash = ?`,
			[]any{toHash, string(cs), from}},
		{"cg_references", `UPDATE cg_references SET source_origin_point_hash = ? WHERE content_stream_id = ? AND source_origin_point_hash = ?`,
			[]any{toHash, string(cs), from}},
		{"cg_restrictions", `UPDATE cg_restrictions SET point_hash = ?, point = ? WHERE content_stream_id = ? AND point_hash = ?`,
			[]any{toHash, toRaw, string(cs), from}},
	}
	for _, stmt := range statements {
		if _, err := p.q.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return fmt.Errorf("move %s from %s to %s: %w", stmt.table, source, target, err)
		}
	}
	return nil
}
