package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/settings"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
	storagesqlite "github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/sqlite"
)

const testSettings = `
dimensions:
  - name: language
    default: en
    values:
      en: {}
      de:
        fallback: en
nodeTypes:
  Sites:
    root: true
  Page:
    properties:
      title:
        type: string
    references:
      author:
        maxItems: 1
`

const (
	liveStream ids.ContentStreamID = "cs-live"
	userStream ids.ContentStreamID = "cs-user"
	sitesID    ids.NodeAggregateID = "sites"
	editor     ids.UserID          = "editor"
)

var testNow = time.Date(2026, 5, 12, 14, 0, 0, 0, time.UTC)

func en() dimension.Point {
	return dimension.MustPoint(map[string]string{"language": "en"})
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	parsed, err := settings.Parse([]byte(testSettings), settings.FormatYAML)
	if err != nil {
		t.Fatalf("parse settings: %v", err)
	}
	built, err := parsed.Build()
	if err != nil {
		t.Fatalf("build settings: %v", err)
	}
	validator, err := event.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("event registry: %v", err)
	}
	dir := t.TempDir()
	events, err := storagesqlite.OpenEvents(ctx, filepath.Join(dir, "events.db"), nil, validator)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	projections, err := storagesqlite.OpenProjections(ctx, filepath.Join(dir, "projections.db"))
	if err != nil {
		_ = events.Close()
		t.Fatalf("open projections: %v", err)
	}
	repo, err := New(Options{
		Events:      events,
		Projections: projections,
		Settings:    built,
		Now:         func() time.Time { return testNow },
		NewID:       id.Sequence("cs-gen"),
	})
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close repository: %v", err)
		}
	})
	return repo
}

func mustSubmit(t *testing.T, repo *Repository, payload command.Payload) {
	t.Helper()
	if _, err := repo.Submit(context.Background(), payload, editor); err != nil {
		t.Fatalf("%s: %v", payload.CommandType(), err)
	}
}

// setupLive creates the live root workspace with a Sites root node.
func setupLive(t *testing.T, repo *Repository) {
	t.Helper()
	mustSubmit(t, repo, command.CreateRootWorkspace{WorkspaceName: "live", NewContentStreamID: liveStream})
	mustSubmit(t, repo, command.CreateRootNodeAggregateWithNode{
		ContentStreamID: liveStream,
		NodeAggregateID: sitesID,
		NodeTypeName:    "Sites",
	})
}

func createPage(cs ids.ContentStreamID, aggregate ids.NodeAggregateID, name ids.NodeName) command.CreateNodeAggregateWithNode {
	return command.CreateNodeAggregateWithNode{
		ContentStreamID:           cs,
		NodeAggregateID:           aggregate,
		NodeTypeName:              "Page",
		OriginDimensionSpacePoint: en().AsOrigin(),
		ParentNodeAggregateID:     sitesID,
		NodeName:                  name,
	}
}

func setTitle(cs ids.ContentStreamID, aggregate ids.NodeAggregateID, title string) command.SetNodeProperties {
	raw, _ := json.Marshal(title)
	return command.SetNodeProperties{
		ContentStreamID:           cs,
		NodeAggregateID:           aggregate,
		OriginDimensionSpacePoint: en().AsOrigin(),
		PropertyValues:            node.PropertyValues{"title": raw},
	}
}

func hasNode(t *testing.T, repo *Repository, cs ids.ContentStreamID, aggregate ids.NodeAggregateID) bool {
	t.Helper()
	_, err := repo.Graph().FindNodeAggregate(context.Background(), cs, aggregate)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		t.Fatalf("find %s in %s: %v", aggregate, cs, err)
	}
	return true
}

func titleOf(t *testing.T, repo *Repository, cs ids.ContentStreamID, aggregate ids.NodeAggregateID) string {
	t.Helper()
	n, err := repo.Graph().FindNode(context.Background(), cs, en(), aggregate, node.VisibilityFrontend)
	if err != nil {
		t.Fatalf("find %s in %s: %v", aggregate, cs, err)
	}
	var title string
	if _, err := n.Properties().Get("title", &title); err != nil {
		t.Fatalf("decode title: %v", err)
	}
	return title
}

func workspaceRecord(t *testing.T, repo *Repository, name ids.WorkspaceName) storage.WorkspaceRecord {
	t.Helper()
	record, err := repo.Workspaces().GetWorkspace(context.Background(), name)
	if err != nil {
		t.Fatalf("get workspace %s: %v", name, err)
	}
	return record
}

func TestNewRequiresStoresAndSettings(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without stores")
	}
	var repo *Repository
	if err := repo.Close(); err != nil {
		t.Fatalf("close nil repository: %v", err)
	}
}

func TestHandleCatchesUpEveryProjection(t *testing.T) {
	repo := newTestRepository(t)
	setupLive(t, repo)

	statuses, err := repo.Projections().Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("statuses = %+v, want 3 projections", statuses)
	}
	for _, status := range statuses {
		if status.Lag() != 0 {
			t.Fatalf("projection %s lags by %d", status.Projection, status.Lag())
		}
	}
	live := workspaceRecord(t, repo, "live")
	if live.CurrentContentStreamID != liveStream || !live.IsRoot() {
		t.Fatalf("live = %+v", live)
	}
	if !hasNode(t, repo, liveStream, sitesID) {
		t.Fatal("root node missing from live stream")
	}
}

func TestOpenWiresConfiguredEventStore(t *testing.T) {
	for _, store := range []string{EventStoreSQLite, EventStoreBadger} {
		t.Run(store, func(t *testing.T) {
			dir := t.TempDir()
			settingsPath := filepath.Join(dir, "settings.yaml")
			if err := os.WriteFile(settingsPath, []byte(testSettings), 0o600); err != nil {
				t.Fatalf("write settings: %v", err)
			}
			cfg := Config{
				EventsDBPath:      filepath.Join(dir, "db", "events.db"),
				ProjectionsDBPath: filepath.Join(dir, "db", "projections.db"),
				SettingsPath:      settingsPath,
				EventStore:        store,
				BadgerPath:        filepath.Join(dir, "badger", "events"),
			}
			repo, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer repo.Close()

			setupLive(t, repo)
			report, err := repo.Events().VerifyIntegrity(context.Background())
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			// live workspace stream plus its content stream
			if report.Streams != 2 {
				t.Fatalf("report = %+v, want 2 streams", report)
			}
		})
	}
}
