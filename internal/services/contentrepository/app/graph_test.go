package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

func de() dimension.Point {
	return dimension.MustPoint(map[string]string{"language": "de"})
}

func TestReadsFallBackToGeneralizations(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	setupLive(t, repo)
	mustSubmit(t, repo, createPage(liveStream, "page-a", "a"))
	mustSubmit(t, repo, setTitle(liveStream, "page-a", "Hello"))

	n, err := repo.Graph().FindNode(ctx, liveStream, de(), "page-a", node.VisibilityFrontend)
	if err != nil {
		t.Fatalf("find at de: %v", err)
	}
	if n.Origin() != en().AsOrigin() {
		t.Fatalf("origin = %s, want en fallback", n.Origin().ToPoint())
	}

	mustSubmit(t, repo, command.CreateNodeVariant{
		ContentStreamID: liveStream,
		NodeAggregateID: "page-a",
		SourceOrigin:    en().AsOrigin(),
		TargetOrigin:    de().AsOrigin(),
	})
	raw := []byte(`"Hallo"`)
	mustSubmit(t, repo, command.SetNodeProperties{
		ContentStreamID:           liveStream,
		NodeAggregateID:           "page-a",
		OriginDimensionSpacePoint: de().AsOrigin(),
		PropertyValues:            node.PropertyValues{"title": raw},
	})

	n, err = repo.Graph().FindNode(ctx, liveStream, de(), "page-a", node.VisibilityFrontend)
	if err != nil {
		t.Fatalf("find at de: %v", err)
	}
	var title string
	if _, err := n.Properties().Get("title", &title); err != nil {
		t.Fatalf("decode title: %v", err)
	}
	if n.Origin() != de().AsOrigin() || title != "Hallo" {
		t.Fatalf("de variant = %s %q, want de Hallo", n.Origin().ToPoint(), title)
	}
	if got := titleOf(t, repo, liveStream, "page-a"); got != "Hello" {
		t.Fatalf("en title = %q, want Hello", got)
	}
}

func TestDisableHidesNodeUntilEnabled(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	setupLive(t, repo)
	mustSubmit(t, repo, createPage(liveStream, "page-a", "a"))

	mustSubmit(t, repo, command.DisableNodeAggregate{
		ContentStreamID:            liveStream,
		NodeAggregateID:            "page-a",
		CoveredDimensionSpacePoint: en(),
	})
	for _, point := range []dimension.Point{en(), de()} {
		if _, err := repo.Graph().FindNode(ctx, liveStream, point, "page-a", node.VisibilityFrontend); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("frontend read at %s: err = %v, want not found", point, err)
		}
		n, err := repo.Graph().FindNode(ctx, liveStream, point, "page-a", node.VisibilityWithoutRestrictions)
		if err != nil {
			t.Fatalf("unrestricted read at %s: %v", point, err)
		}
		if !n.Disabled() {
			t.Fatalf("node at %s should read as disabled", point)
		}
		hidden, err := repo.HiddenState().IsHidden(ctx, liveStream, "page-a", point)
		if err != nil {
			t.Fatalf("is hidden: %v", err)
		}
		if !hidden {
			t.Fatalf("hidden state at %s = false, want true", point)
		}
	}

	mustSubmit(t, repo, command.EnableNodeAggregate{
		ContentStreamID:            liveStream,
		NodeAggregateID:            "page-a",
		CoveredDimensionSpacePoint: de(),
	})
	if _, err := repo.Graph().FindNode(ctx, liveStream, de(), "page-a", node.VisibilityFrontend); err != nil {
		t.Fatalf("enabled at de: %v", err)
	}
	if _, err := repo.Graph().FindNode(ctx, liveStream, en(), "page-a", node.VisibilityFrontend); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("still disabled at en: err = %v", err)
	}
}

func TestReferencesResolveTargets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	setupLive(t, repo)
	mustSubmit(t, repo, createPage(liveStream, "page-a", "a"))
	mustSubmit(t, repo, createPage(liveStream, "page-b", "b"))
	mustSubmit(t, repo, command.SetSerializedNodeReferences{
		ContentStreamID:                 liveStream,
		SourceNodeAggregateID:           "page-a",
		SourceOriginDimensionSpacePoint: en().AsOrigin(),
		ReferenceName:                   "author",
		References:                      node.References{{TargetNodeAggregateID: "page-b"}},
	})

	refs, err := repo.Graph().FindReferences(ctx, liveStream, de(), "page-a", node.VisibilityFrontend)
	if err != nil {
		t.Fatalf("find references: %v", err)
	}
	if len(refs) != 1 || refs[0].Name != "author" || refs[0].Target.AggregateID() != "page-b" {
		t.Fatalf("references = %+v, want author -> page-b", refs)
	}
}

func TestRemoveDropsAggregateFromStream(t *testing.T) {
	repo := newTestRepository(t)
	setupLive(t, repo)
	mustSubmit(t, repo, createPage(liveStream, "page-a", "a"))
	mustSubmit(t, repo, command.RemoveNodeAggregate{
		ContentStreamID:              liveStream,
		NodeAggregateID:              "page-a",
		CoveredDimensionSpacePoint:   en(),
		NodeVariantSelectionStrategy: command.StrategyAllVariants,
	})
	if hasNode(t, repo, liveStream, "page-a") {
		t.Fatal("removed aggregate still present")
	}
}

// graphDump reads everything the tests care about for a set of nodes.
type graphDump struct {
	Streams    []storage.ContentStreamRecord
	Workspaces []storage.WorkspaceRecord
	Titles     map[string]string
	Hidden     map[string]bool
}

func dumpGraph(t *testing.T, repo *Repository, streams []ids.ContentStreamID, aggregates []ids.NodeAggregateID) graphDump {
	t.Helper()
	ctx := context.Background()
	dump := graphDump{Titles: map[string]string{}, Hidden: map[string]bool{}}
	for _, cs := range streams {
		record, err := repo.Graph().ContentStream(ctx, cs)
		if err != nil {
			t.Fatalf("content stream %s: %v", cs, err)
		}
		dump.Streams = append(dump.Streams, record)
		for _, aggregate := range aggregates {
			for _, point := range []dimension.Point{en(), de()} {
				key := string(cs) + "/" + string(aggregate) + "@" + point.String()
				n, err := repo.Graph().FindNode(ctx, cs, point, aggregate, node.VisibilityWithoutRestrictions)
				switch {
				case errors.Is(err, storage.ErrNotFound):
					dump.Titles[key] = "<absent>"
				case err != nil:
					t.Fatalf("find %s: %v", key, err)
				default:
					var title string
					if _, err := n.Properties().Get("title", &title); err != nil {
						t.Fatalf("decode title: %v", err)
					}
					dump.Titles[key] = title
				}
				hidden, err := repo.HiddenState().IsHidden(ctx, cs, aggregate, point)
				if err != nil {
					t.Fatalf("is hidden %s: %v", key, err)
				}
				dump.Hidden[key] = hidden
			}
		}
	}
	workspaces, err := repo.Workspaces().ListWorkspaces(ctx)
	if err != nil {
		t.Fatalf("list workspaces: %v", err)
	}
	dump.Workspaces = workspaces
	return dump
}

func TestRebuildReproducesIncrementalState(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, setTitle(userStream, "page-a", "Draft"))
	mustSubmit(t, repo, createPage(userStream, "page-b", "b"))
	mustSubmit(t, repo, command.DisableNodeAggregate{
		ContentStreamID:            userStream,
		NodeAggregateID:            "page-b",
		CoveredDimensionSpacePoint: de(),
	})
	if _, err := repo.Submit(ctx, command.PublishWorkspace{WorkspaceName: "user", NewContentStreamID: "cs-user-2"}, editor); err != nil {
		t.Fatalf("publish: %v", err)
	}

	streams := []ids.ContentStreamID{liveStream, userStream, "cs-user-2"}
	aggregates := []ids.NodeAggregateID{sitesID, "page-a", "page-b"}
	before := dumpGraph(t, repo, streams, aggregates)

	for _, name := range repo.Projections().Names() {
		if _, err := repo.Projections().Rebuild(ctx, name); err != nil {
			t.Fatalf("rebuild %s: %v", name, err)
		}
	}
	after := dumpGraph(t, repo, streams, aggregates)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rebuilt state differs:\nbefore %+v\nafter  %+v", before, after)
	}
	if before.Titles["cs-live/page-a@"+en().String()] != "Draft" {
		t.Fatalf("published title missing from live: %+v", before.Titles)
	}
	if !before.Hidden["cs-user-2/page-b@"+de().String()] {
		t.Fatal("hidden state did not follow the fork after publish")
	}
}
