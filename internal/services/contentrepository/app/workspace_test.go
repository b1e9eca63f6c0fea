package app

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/workspace"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

func setupUser(t *testing.T, repo *Repository) {
	t.Helper()
	setupLive(t, repo)
	mustSubmit(t, repo, command.CreateWorkspace{
		WorkspaceName:      "user",
		BaseWorkspaceName:  "live",
		NewContentStreamID: userStream,
		WorkspaceOwner:     editor,
	})
}

func streamClosed(t *testing.T, repo *Repository, cs ids.ContentStreamID) bool {
	t.Helper()
	record, err := repo.Graph().ContentStream(context.Background(), cs)
	if err != nil {
		t.Fatalf("content stream %s: %v", cs, err)
	}
	return record.IsClosed()
}

func TestCreateWorkspaceErrors(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)

	tests := []struct {
		name    string
		payload command.Payload
		code    apperrors.Code
	}{
		{
			name:    "duplicate root",
			payload: command.CreateRootWorkspace{WorkspaceName: "live"},
			code:    apperrors.CodeWorkspaceAlreadyExists,
		},
		{
			name:    "missing base",
			payload: command.CreateWorkspace{WorkspaceName: "other", BaseWorkspaceName: "nope"},
			code:    apperrors.CodeWorkspaceNotFound,
		},
		{
			name:    "rebase root",
			payload: command.RebaseWorkspace{WorkspaceName: "live"},
			code:    apperrors.CodeWorkspaceHasNoBase,
		},
		{
			name:    "publish unknown",
			payload: command.PublishWorkspace{WorkspaceName: "ghost"},
			code:    apperrors.CodeWorkspaceNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Submit(context.Background(), tt.payload, editor)
			if !apperrors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestRebaseReplaysPassingCommandsAndReportsConflicts(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, createPage(userStream, "page-b", "b"))
	mustSubmit(t, repo, setTitle(userStream, "page-a", "Hello"))
	mustSubmit(t, repo, createPage(liveStream, "page-x", "b"))

	_, err := repo.Submit(context.Background(), command.RebaseWorkspace{WorkspaceName: "user", RebasedContentStreamID: "cs-rebased"}, editor)
	if !apperrors.HasCode(err, apperrors.CodeRebaseConflict) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeRebaseConflict)
	}
	failures, ok := workspace.Conflicts(err)
	if !ok || len(failures) != 1 {
		t.Fatalf("failures = %+v, want one", failures)
	}
	failure := failures[0]
	if failure.CommandIndex != 1 || failure.CommandType != string(command.TypeCreateNodeAggregateWithNode) {
		t.Fatalf("failure = %+v, want second command", failure)
	}
	if failure.Reason != string(apperrors.CodeNodeNameOccupied) || failure.NodeAggregateID != "page-b" {
		t.Fatalf("failure = %+v, want name occupied for page-b", failure)
	}

	user := workspaceRecord(t, repo, "user")
	if user.CurrentContentStreamID != userStream {
		t.Fatalf("user stream = %s, want unchanged %s", user.CurrentContentStreamID, userStream)
	}
	if len(user.LastFailureJSON) == 0 {
		t.Fatal("expected the failure to be recorded on the workspace")
	}
	if streamClosed(t, repo, userStream) {
		t.Fatal("original stream closed after failed rebase")
	}

	// Commands before and after the conflict still landed on the candidate.
	if got := titleOf(t, repo, "cs-rebased", "page-a"); got != "Hello" {
		t.Fatalf("candidate title = %q, want Hello", got)
	}
	if hasNode(t, repo, "cs-rebased", "page-b") {
		t.Fatal("conflicting node reached the candidate stream")
	}
	if !hasNode(t, repo, "cs-rebased", "page-x") {
		t.Fatal("candidate stream lost the base node")
	}
}

func TestRebaseSwitchesToCandidateStream(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, createPage(liveStream, "page-x", "x"))

	if _, err := repo.Submit(context.Background(), command.RebaseWorkspace{WorkspaceName: "user", RebasedContentStreamID: "cs-rebased"}, editor); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	user := workspaceRecord(t, repo, "user")
	if user.CurrentContentStreamID != "cs-rebased" || user.Status != storage.WorkspaceUpToDate {
		t.Fatalf("user = %+v, want cs-rebased up to date", user)
	}
	if !streamClosed(t, repo, userStream) {
		t.Fatal("previous stream still open")
	}
	for _, aggregate := range []ids.NodeAggregateID{"page-a", "page-x"} {
		if !hasNode(t, repo, "cs-rebased", aggregate) {
			t.Fatalf("%s missing from rebased stream", aggregate)
		}
	}
	if hasNode(t, repo, liveStream, "page-a") {
		t.Fatal("rebase leaked into the base")
	}
}

func TestPublishCopiesEventsToBase(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, command.CreateWorkspace{WorkspaceName: "review", BaseWorkspaceName: "live", NewContentStreamID: "cs-review"})
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, setTitle(userStream, "page-a", "Published"))

	if _, err := repo.Submit(context.Background(), command.PublishWorkspace{WorkspaceName: "user", NewContentStreamID: "cs-user-2"}, editor); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := titleOf(t, repo, liveStream, "page-a"); got != "Published" {
		t.Fatalf("live title = %q, want Published", got)
	}
	user := workspaceRecord(t, repo, "user")
	if user.CurrentContentStreamID != "cs-user-2" {
		t.Fatalf("user stream = %s, want cs-user-2", user.CurrentContentStreamID)
	}
	if !hasNode(t, repo, "cs-user-2", "page-a") {
		t.Fatal("new user stream does not see published node")
	}
	if !streamClosed(t, repo, userStream) {
		t.Fatal("published stream still open")
	}
	if review := workspaceRecord(t, repo, "review"); review.Status != storage.WorkspaceOutdated {
		t.Fatalf("review status = %s, want %s", review.Status, storage.WorkspaceOutdated)
	}
	if user.Status != storage.WorkspaceUpToDate {
		t.Fatalf("user status = %s, want %s", user.Status, storage.WorkspaceUpToDate)
	}
}

func TestPublishRejectsModifiedBase(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, createPage(liveStream, "page-x", "x"))

	_, err := repo.Submit(context.Background(), command.PublishWorkspace{WorkspaceName: "user"}, editor)
	if !apperrors.HasCode(err, apperrors.CodeBaseWorkspaceModified) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeBaseWorkspaceModified)
	}
	if hasNode(t, repo, liveStream, "page-a") {
		t.Fatal("rejected publish reached the base")
	}
	if user := workspaceRecord(t, repo, "user"); user.CurrentContentStreamID != userStream {
		t.Fatalf("user stream = %s, want %s", user.CurrentContentStreamID, userStream)
	}
}

func TestPublishIndividualNodesThenRest(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, createPage(userStream, "page-b", "b"))

	_, err := repo.Submit(context.Background(), command.PublishIndividualNodesFromWorkspace{
		WorkspaceName: "user",
		NodesToPublish: node.Addresses{{
			ContentStreamID:     userStream,
			DimensionSpacePoint: en(),
			NodeAggregateID:     "page-a",
		}},
		ContentStreamIDForMatchingPart:  "cs-match",
		ContentStreamIDForRemainingPart: "cs-rest",
	}, editor)
	if err != nil {
		t.Fatalf("publish nodes: %v", err)
	}
	if !hasNode(t, repo, liveStream, "page-a") || hasNode(t, repo, liveStream, "page-b") {
		t.Fatal("live should hold page-a only")
	}
	user := workspaceRecord(t, repo, "user")
	if user.CurrentContentStreamID != "cs-rest" {
		t.Fatalf("user stream = %s, want cs-rest", user.CurrentContentStreamID)
	}
	for _, aggregate := range []ids.NodeAggregateID{"page-a", "page-b"} {
		if !hasNode(t, repo, "cs-rest", aggregate) {
			t.Fatalf("%s missing from remaining stream", aggregate)
		}
	}
	if !streamClosed(t, repo, "cs-match") || !streamClosed(t, repo, userStream) {
		t.Fatal("intermediate streams still open")
	}

	// The remaining stream descends from the published part, so a full
	// publish right after still lines up with the base.
	if _, err := repo.Submit(context.Background(), command.PublishWorkspace{WorkspaceName: "user"}, editor); err != nil {
		t.Fatalf("publish rest: %v", err)
	}
	if !hasNode(t, repo, liveStream, "page-b") {
		t.Fatal("page-b missing from live after publishing the rest")
	}
}

func TestDiscardIndividualNodesKeepsTheRest(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))
	mustSubmit(t, repo, createPage(userStream, "page-b", "b"))
	mustSubmit(t, repo, setTitle(userStream, "page-b", "Kept"))

	_, err := repo.Submit(context.Background(), command.DiscardIndividualNodesFromWorkspace{
		WorkspaceName: "user",
		NodesToDiscard: node.Addresses{{
			ContentStreamID:     userStream,
			DimensionSpacePoint: en(),
			NodeAggregateID:     "page-a",
		}},
		NewContentStreamID: "cs-kept",
	}, editor)
	if err != nil {
		t.Fatalf("discard nodes: %v", err)
	}
	if hasNode(t, repo, "cs-kept", "page-a") {
		t.Fatal("discarded node survived")
	}
	if got := titleOf(t, repo, "cs-kept", "page-b"); got != "Kept" {
		t.Fatalf("title = %q, want Kept", got)
	}
	if user := workspaceRecord(t, repo, "user"); user.CurrentContentStreamID != "cs-kept" {
		t.Fatalf("user stream = %s, want cs-kept", user.CurrentContentStreamID)
	}
}

func TestDiscardWorkspaceDropsChanges(t *testing.T) {
	repo := newTestRepository(t)
	setupUser(t, repo)
	mustSubmit(t, repo, createPage(userStream, "page-a", "a"))

	if _, err := repo.Submit(context.Background(), command.DiscardWorkspace{WorkspaceName: "user"}, editor); err != nil {
		t.Fatalf("discard: %v", err)
	}
	user := workspaceRecord(t, repo, "user")
	if user.CurrentContentStreamID == userStream {
		t.Fatal("workspace still on discarded stream")
	}
	if hasNode(t, repo, user.CurrentContentStreamID, "page-a") {
		t.Fatal("discarded change visible in new stream")
	}
	if !streamClosed(t, repo, userStream) {
		t.Fatal("discarded stream still open")
	}
	_, err := repo.Submit(context.Background(), createPage(userStream, "page-z", "z"), editor)
	if !apperrors.HasCode(err, apperrors.CodeContentStreamClosed) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeContentStreamClosed)
	}
}

func TestForkedStreamIsIsolatedFromItsSource(t *testing.T) {
	repo := newTestRepository(t)
	setupLive(t, repo)
	mustSubmit(t, repo, createPage(liveStream, "page-a", "a"))
	mustSubmit(t, repo, setTitle(liveStream, "page-a", "Live"))
	mustSubmit(t, repo, command.CreateWorkspace{
		WorkspaceName:      "user",
		BaseWorkspaceName:  "live",
		NewContentStreamID: userStream,
		WorkspaceOwner:     editor,
	})

	if got := titleOf(t, repo, userStream, "page-a"); got != "Live" {
		t.Fatalf("forked title = %q, want Live", got)
	}
	mustSubmit(t, repo, setTitle(userStream, "page-a", "Draft"))
	mustSubmit(t, repo, createPage(userStream, "page-b", "b"))
	mustSubmit(t, repo, createPage(liveStream, "page-c", "c"))

	if got := titleOf(t, repo, liveStream, "page-a"); got != "Live" {
		t.Fatalf("live title = %q, want Live", got)
	}
	if got := titleOf(t, repo, userStream, "page-a"); got != "Draft" {
		t.Fatalf("user title = %q, want Draft", got)
	}
	if hasNode(t, repo, liveStream, "page-b") {
		t.Fatal("page-b leaked into live")
	}
	if hasNode(t, repo, userStream, "page-c") {
		t.Fatal("page-c leaked into the fork")
	}
}
