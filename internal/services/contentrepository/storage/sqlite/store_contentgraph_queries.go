package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// nodeSelect reads a variant through the coverage row of one point.
const nodeSelect = `SELECT n.node_aggregate_id, n.origin_point, n.node_type_name, n.classification, n.node_name,
	n.properties_json, n.created_at, n.last_modified_at,
	EXISTS (SELECT 1 FROM cg_restrictions r
		WHERE r.content_stream_id = c.content_stream_id
		AND r.node_aggregate_id = c.node_aggregate_id
		AND r.point_hash = c.point_hash) AS disabled
FROM cg_coverage c
JOIN cg_nodes n ON n.content_stream_id = c.content_stream_id
	AND n.node_aggregate_id = c.node_aggregate_id
	AND n.origin_point_hash = c.origin_point_hash
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner, subgraph node.SubgraphIdentity) (node.Node, error) {
	var (
		aggregate, origin, nodeType string
		classification, name        string
		properties                  []byte
		created, modified           int64
		disabled                    bool
	)
	if err := row.Scan(&aggregate, &origin, &nodeType, &classification, &name, &properties, &created, &modified, &disabled); err != nil {
		return node.Node{}, err
	}
	originPoint, err := decodePoint(origin)
	if err != nil {
		return node.Node{}, err
	}
	values, err := node.ParsePropertyValues(properties)
	if err != nil {
		return node.Node{}, err
	}
	return node.NewNode(node.Params{
		Subgraph:       subgraph,
		AggregateID:    ids.NodeAggregateID(aggregate),
		Origin:         originPoint.AsOrigin(),
		Classification: node.Classification(classification),
		NodeType:       ids.NodeTypeName(nodeType),
		Properties:     values,
		Name:           ids.NodeName(name),
		Timestamps:     node.Timestamps{Created: fromMillis(created), LastModified: fromMillis(modified)},
		Disabled:       disabled,
	})
}

// ContentStream implements storage.ContentGraphReader.
func (p projectionQueries) ContentStream(ctx context.Context, cs ids.ContentStreamID) (storage.ContentStreamRecord, error) {
	var (
		r                      storage.ContentStreamRecord
		id, source, state      string
		sourceVersion, version int64
		createdAt, updatedAt   int64
	)
	err := p.q.QueryRowContext(ctx,
		`SELECT content_stream_id, source_content_stream_id, source_version, version, state, created_at, updated_at
		 FROM cg_content_streams WHERE content_stream_id = ?`,
		string(cs),
	).Scan(&id, &source, &sourceVersion, &version, &state, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ContentStreamRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ContentStreamRecord{}, fmt.Errorf("read content stream %s: %w", cs, err)
	}
	r.ID = ids.ContentStreamID(id)
	r.SourceID = ids.ContentStreamID(source)
	r.SourceVersion = uint64(sourceVersion)
	r.Version = uint64(version)
	r.State = storage.ContentStreamState(state)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

// FindNodeAggregate implements storage.ContentGraphReader.
func (p projectionQueries) FindNodeAggregate(ctx context.Context, cs ids.ContentStreamID, aggregate ids.NodeAggregateID) (node.Aggregate, error) {
	agg := node.Aggregate{
		ContentStreamID:  cs,
		ID:               aggregate,
		CoverageByOrigin: make(map[dimension.Point]dimension.PointSet),
	}
	origins := make(map[string]dimension.Point)

	rows, err := p.q.QueryContext(ctx,
		`SELECT origin_point_hash, origin_point, node_type_name, classification, node_name
		 FROM cg_nodes WHERE content_stream_id = ? AND node_aggregate_id = ?`,
		string(cs), string(aggregate),
	)
	if err != nil {
		return node.Aggregate{}, fmt.Errorf("read variants of %s: %w", aggregate, err)
	}
	var occupied []dimension.Point
	for rows.Next() {
		var hash, raw, nodeType, classification, name string
		if err := rows.Scan(&hash, &raw, &nodeType, &classification, &name); err != nil {
			rows.Close()
			return node.Aggregate{}, fmt.Errorf("scan variant of %s: %w", aggregate, err)
		}
		origin, err := decodePoint(raw)
		if err != nil {
			rows.Close()
			return node.Aggregate{}, err
		}
		origins[hash] = origin
		occupied = append(occupied, origin)
		agg.NodeType = ids.NodeTypeName(nodeType)
		agg.Classification = node.Classification(classification)
		agg.Name = ids.NodeName(name)
	}
	if err := closeRows(rows); err != nil {
		return node.Aggregate{}, fmt.Errorf("read variants of %s: %w", aggregate, err)
	}
	if len(occupied) == 0 {
		return node.Aggregate{}, storage.ErrNotFound
	}
	agg.OccupiedOrigins = dimension.NewPointSet(occupied...)

	rows, err = p.q.QueryContext(ctx,
		`SELECT point, origin_point_hash, parent_node_aggregate_id
		 FROM cg_coverage WHERE content_stream_id = ? AND node_aggregate_id = ?`,
		string(cs), string(aggregate),
	)
	if err != nil {
		return node.Aggregate{}, fmt.Errorf("read coverage of %s: %w", aggregate, err)
	}
	var covered []dimension.Point
	byOrigin := make(map[dimension.Point][]dimension.Point)
	parents := make(map[ids.NodeAggregateID]struct{})
	for rows.Next() {
		var raw, originHash, parent string
		if err := rows.Scan(&raw, &originHash, &parent); err != nil {
			rows.Close()
			return node.Aggregate{}, fmt.Errorf("scan coverage of %s: %w", aggregate, err)
		}
		point, err := decodePoint(raw)
		if err != nil {
			rows.Close()
			return node.Aggregate{}, err
		}
		covered = append(covered, point)
		if origin, ok := origins[originHash]; ok {
			byOrigin[origin] = append(byOrigin[origin], point)
		}
		if parent != "" {
			parents[ids.NodeAggregateID(parent)] = struct{}{}
		}
	}
	if err := closeRows(rows); err != nil {
		return node.Aggregate{}, fmt.Errorf("read coverage of %s: %w", aggregate, err)
	}
	agg.CoveredPoints = dimension.NewPointSet(covered...)
	for origin, points := range byOrigin {
		agg.CoverageByOrigin[origin] = dimension.NewPointSet(points...)
	}
	for parent := range parents {
		agg.ParentIDs = append(agg.ParentIDs, parent)
	}
	sort.Slice(agg.ParentIDs, func(i, j int) bool { return agg.ParentIDs[i] < agg.ParentIDs[j] })

	disabled, err := p.points(ctx,
		`SELECT point FROM cg_restrictions WHERE content_stream_id = ? AND node_aggregate_id = ? AND disabled_by = ?`,
		string(cs), string(aggregate), string(aggregate),
	)
	if err != nil {
		return node.Aggregate{}, fmt.Errorf("read restrictions of %s: %w", aggregate, err)
	}
	agg.DisabledPoints = dimension.NewPointSet(disabled...)
	return agg, nil
}

// FindNode implements storage.ContentGraphReader.
func (p projectionQueries) FindNode(ctx context.Context, cs ids.ContentStreamID, point dimension.Point, aggregate ids.NodeAggregateID, visibility node.Visibility) (node.Node, error) {
	subgraph := node.SubgraphIdentity{ContentStreamID: cs, DimensionSpacePoint: point, Visibility: visibility}
	row := p.q.QueryRowContext(ctx,
		nodeSelect+`WHERE c.content_stream_id = ? AND c.node_aggregate_id = ? AND c.point_hash = ?`,
		string(cs), string(aggregate), point.Hash(),
	)
	n, err := scanNode(row, subgraph)
	if errors.Is(err, sql.ErrNoRows) {
		return node.Node{}, storage.ErrNotFound
	}
	if err != nil {
		return node.Node{}, fmt.Errorf("find node %s@%s: %w", aggregate, point, err)
	}
	if n.Disabled() && !visibility.IncludesDisabled() {
		return node.Node{}, storage.ErrNotFound
	}
	return n, nil
}

// FindChildNodeAggregatesByName implements storage.ContentGraphReader.
func (p projectionQueries) FindChildNodeAggregatesByName(ctx context.Context, cs ids.ContentStreamID, parent ids.NodeAggregateID, name ids.NodeName) ([]node.Aggregate, error) {
	return p.childAggregates(ctx,
		`SELECT DISTINCT c.node_aggregate_id FROM cg_coverage c
		 JOIN cg_nodes n ON n.content_stream_id = c.content_stream_id
			AND n.node_aggregate_id = c.node_aggregate_id
			AND n.origin_point_hash = c.origin_point_hash
		 WHERE c.content_stream_id = ? AND c.parent_node_aggregate_id = ? AND n.node_name = ?
		 ORDER BY c.node_aggregate_id`,
		cs, string(cs), string(parent), string(name),
	)
}

// FindTetheredChildNodeAggregates implements storage.ContentGraphReader.
func (p projectionQueries) FindTetheredChildNodeAggregates(ctx context.Context, cs ids.ContentStreamID, parent ids.NodeAggregateID) ([]node.Aggregate, error) {
	return p.childAggregates(ctx,
		`SELECT DISTINCT c.node_aggregate_id FROM cg_coverage c
		 JOIN cg_nodes n ON n.content_stream_id = c.content_stream_id
			AND n.node_aggregate_id = c.node_aggregate_id
			AND n.origin_point_hash = c.origin_point_hash
		 WHERE c.content_stream_id = ? AND c.parent_node_aggregate_id = ? AND n.classification = ?
		 ORDER BY c.node_aggregate_id`,
		cs, string(cs), string(parent), string(node.ClassificationTethered),
	)
}

func (p projectionQueries) childAggregates(ctx context.Context, query string, cs ids.ContentStreamID, args ...any) ([]node.Aggregate, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query child aggregates: %w", err)
	}
	var children []ids.NodeAggregateID
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan child aggregate: %w", err)
		}
		children = append(children, ids.NodeAggregateID(child))
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("query child aggregates: %w", err)
	}
	aggregates := make([]node.Aggregate, 0, len(children))
	for _, child := range children {
		agg, err := p.FindNodeAggregate(ctx, cs, child)
		if err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, nil
}

// FindChildNodes implements storage.ContentGraphReader. Children come in
// creation order.
func (p projectionQueries) FindChildNodes(ctx context.Context, cs ids.ContentStreamID, point dimension.Point, parent ids.NodeAggregateID, visibility node.Visibility) ([]node.Node, error) {
	subgraph := node.SubgraphIdentity{ContentStreamID: cs, DimensionSpacePoint: point, Visibility: visibility}
	rows, err := p.q.QueryContext(ctx,
		nodeSelect+`WHERE c.content_stream_id = ? AND c.parent_node_aggregate_id = ? AND c.point_hash = ?
		ORDER BY n.created_at, n.node_aggregate_id`,
		string(cs), string(parent), point.Hash(),
	)
	if err != nil {
		return nil, fmt.Errorf("find children of %s@%s: %w", parent, point, err)
	}
	defer rows.Close()
	var children []node.Node
	for rows.Next() {
		n, err := scanNode(rows, subgraph)
		if err != nil {
			return nil, fmt.Errorf("scan child of %s: %w", parent, err)
		}
		if n.Disabled() && !visibility.IncludesDisabled() {
			continue
		}
		children = append(children, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find children of %s@%s: %w", parent, point, err)
	}
	return children, nil
}

// FindRootNodeAggregateByType implements storage.ContentGraphReader.
func (p projectionQueries) FindRootNodeAggregateByType(ctx context.Context, cs ids.ContentStreamID, nodeType ids.NodeTypeName) (node.Aggregate, error) {
	var aggregate string
	err := p.q.QueryRowContext(ctx,
		`SELECT node_aggregate_id FROM cg_nodes
		 WHERE content_stream_id = ? AND classification = ? AND node_type_name = ?
		 ORDER BY node_aggregate_id LIMIT 1`,
		string(cs), string(node.ClassificationRoot), string(nodeType),
	).Scan(&aggregate)
	if errors.Is(err, sql.ErrNoRows) {
		return node.Aggregate{}, storage.ErrNotFound
	}
	if err != nil {
		return node.Aggregate{}, fmt.Errorf("find root of type %s: %w", nodeType, err)
	}
	return p.FindNodeAggregate(ctx, cs, ids.NodeAggregateID(aggregate))
}

// FindReferences implements storage.ContentGraphReader. The references are
// those of the source variant visible at point; targets resolve at point
// too, and targets invisible there are left out.
func (p projectionQueries) FindReferences(ctx context.Context, cs ids.ContentStreamID, point dimension.Point, source ids.NodeAggregateID, visibility node.Visibility) ([]storage.Reference, error) {
	sourceNode, err := p.FindNode(ctx, cs, point, source, visibility)
	if err != nil {
		return nil, err
	}
	rows, err := p.q.QueryContext(ctx,
		`SELECT reference_name, target_node_aggregate_id, properties_json FROM cg_references
		 WHERE content_stream_id = ? AND source_node_aggregate_id = ? AND source_origin_point_hash = ?
		 ORDER BY reference_name, position`,
		string(cs), string(source), sourceNode.Origin().ToPoint().Hash(),
	)
	if err != nil {
		return nil, fmt.Errorf("find references of %s: %w", source, err)
	}
	type edge struct {
		name       ids.ReferenceName
		target     ids.NodeAggregateID
		properties node.PropertyValues
	}
	var edges []edge
	for rows.Next() {
		var name, target string
		var raw []byte
		if err := rows.Scan(&name, &target, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reference of %s: %w", source, err)
		}
		properties, err := node.ParsePropertyValues(raw)
		if err != nil {
			rows.Close()
			return nil, err
		}
		edges = append(edges, edge{ids.ReferenceName(name), ids.NodeAggregateID(target), properties})
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("find references of %s: %w", source, err)
	}

	references := make([]storage.Reference, 0, len(edges))
	for _, e := range edges {
		target, err := p.FindNode(ctx, cs, point, e.target, visibility)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		references = append(references, storage.Reference{Name: e.name, Target: target, Properties: e.properties})
	}
	return references, nil
}

// IsPointUsed implements storage.ContentGraphReader.
func (p projectionQueries) IsPointUsed(ctx context.Context, cs ids.ContentStreamID, point dimension.Point) (bool, error) {
	var used bool
	err := p.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cg_coverage WHERE content_stream_id = ? AND point_hash = ?)
			OR EXISTS (SELECT 1 FROM cg_nodes WHERE content_stream_id = ? AND origin_point_hash = ?)`,
		string(cs), point.Hash(), string(cs), point.Hash(),
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check point %s in %s: %w", point, cs, err)
	}
	return used, nil
}

func (p projectionQueries) points(ctx context.Context, query string, args ...any) ([]dimension.Point, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []dimension.Point
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		point, err := decodePoint(raw)
		if err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// closeRows closes rows and reports an iteration error, so a follow-up
// query can run on the same transaction.
func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
