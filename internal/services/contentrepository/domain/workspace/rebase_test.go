package workspace

import (
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

func setTitle(cs ids.ContentStreamID, aggregate ids.NodeAggregateID, language string) recorded {
	return recorded{
		Type: command.TypeSetNodeProperties,
		Payload: command.SetNodeProperties{
			ContentStreamID:           cs,
			NodeAggregateID:           aggregate,
			OriginDimensionSpacePoint: dimension.MustPoint(map[string]string{"language": language}).AsOrigin(),
			PropertyValues:            node.PropertyValues{},
		},
		User: "editor",
	}
}

func TestSplitKeepsOriginalPositions(t *testing.T) {
	commands := []recorded{
		setTitle("cs-user", "page-a", "en"),
		setTitle("cs-user", "page-b", "en"),
		setTitle("cs-user", "page-a", "de"),
		setTitle("cs-user", "page-c", "en"),
	}
	selection := node.Addresses{
		{ContentStreamID: "cs-user", DimensionSpacePoint: dimension.MustPoint(map[string]string{"language": "en"}), NodeAggregateID: "page-a"},
		{ContentStreamID: "cs-user", DimensionSpacePoint: dimension.MustPoint(map[string]string{"language": "en"}), NodeAggregateID: "page-c"},
	}

	matching, matchingIdx, rest, restIdx := split(commands, selection)
	if fmt.Sprint(matchingIdx) != "[0 3]" {
		t.Fatalf("matching indexes = %v, want [0 3]", matchingIdx)
	}
	if fmt.Sprint(restIdx) != "[1 2]" {
		t.Fatalf("rest indexes = %v, want [1 2]", restIdx)
	}
	if len(matching) != 2 || len(rest) != 2 {
		t.Fatalf("matching=%d rest=%d, want 2 and 2", len(matching), len(rest))
	}
	if got := rest[1].Payload.(command.SetNodeProperties); got.NodeAggregateID != "page-a" {
		t.Fatalf("rest[1] aggregate = %s, want page-a at de", got.NodeAggregateID)
	}
}

func TestSplitSelectionMustMatchStream(t *testing.T) {
	commands := []recorded{setTitle("cs-user", "page-a", "en")}
	selection := node.Addresses{{ContentStreamID: "cs-other", DimensionSpacePoint: dimension.MustPoint(map[string]string{"language": "en"}), NodeAggregateID: "page-a"}}

	matching, _, rest, _ := split(commands, selection)
	if len(matching) != 0 || len(rest) != 1 {
		t.Fatalf("matching=%d rest=%d, want 0 and 1", len(matching), len(rest))
	}
}

func TestConflictErrorCarriesFailures(t *testing.T) {
	failures := []event.RebaseError{
		{CommandIndex: 1, CommandType: string(command.TypeSetNodeProperties), NodeAggregateID: "page-b", Reason: "NODE_AGGREGATE_NOT_FOUND", Message: "node aggregate page-b not found"},
	}
	err := conflictError("user", failures)

	if !apperrors.HasCode(err, apperrors.CodeRebaseConflict) {
		t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeRebaseConflict)
	}
	got, ok := Conflicts(err)
	if !ok {
		t.Fatal("expected conflicts")
	}
	if len(got) != 1 || got[0].CommandIndex != 1 || got[0].NodeAggregateID != "page-b" {
		t.Fatalf("conflicts = %+v", got)
	}
	if !strings.Contains(err.Error(), "#1 SetNodeProperties") {
		t.Fatalf("error = %q, want command index and type", err.Error())
	}
}

func TestConflictsIgnoresOtherErrors(t *testing.T) {
	if _, ok := Conflicts(apperrors.New(apperrors.CodeNotFound, "missing")); ok {
		t.Fatal("expected no conflicts")
	}
}
