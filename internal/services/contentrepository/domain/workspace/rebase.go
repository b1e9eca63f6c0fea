package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/platform/metrics"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/node"
)

// maxLineage bounds the walk from a workspace stream back to its base.
const maxLineage = 64

// ConflictError lists the commands that could not be replayed.
type ConflictError struct {
	Workspace ids.WorkspaceName
	Errors    []event.RebaseError
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, failure := range e.Errors {
		parts = append(parts, fmt.Sprintf("#%d %s: %s", failure.CommandIndex, failure.CommandType, failure.Message))
	}
	return fmt.Sprintf("workspace %s: %d command(s) failed: %s", e.Workspace, len(e.Errors), strings.Join(parts, "; "))
}

// Conflicts returns the failed commands carried by err, if any.
func Conflicts(err error) ([]event.RebaseError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Errors, true
	}
	return nil, false
}

func conflictError(name ids.WorkspaceName, failures []event.RebaseError) error {
	conflict := &ConflictError{Workspace: name, Errors: failures}
	return apperrors.Wrap(apperrors.CodeRebaseConflict, conflict.Error(), conflict)
}

// recorded is a command as it was accepted on a workspace stream.
type recorded struct {
	Type    command.Type
	Payload command.Rebasable
	User    ids.UserID
}

// extract returns the rebasable commands recorded on a content stream, in
// the order they were accepted.
func (r runner) extract(ctx context.Context, cs ids.ContentStreamID) ([]recorded, error) {
	events, err := journal.ReadStreamAll(ctx, r.Journal, event.ContentStreamStream(cs))
	if err != nil {
		return nil, fmt.Errorf("read content stream %s: %w", cs, err)
	}
	var out []recorded
	for _, evt := range events {
		if evt.Metadata.CommandType == "" {
			continue
		}
		cmdType := command.Type(evt.Metadata.CommandType)
		payload, err := r.Commands.Decode(command.Command{Type: cmdType, PayloadJSON: evt.Metadata.CommandPayload})
		if err != nil {
			return nil, fmt.Errorf("decode command of %s v%d: %w", evt.StreamName, evt.StreamVersion, err)
		}
		rebasable, ok := payload.(command.Rebasable)
		if !ok {
			continue
		}
		out = append(out, recorded{Type: cmdType, Payload: rebasable, User: evt.Metadata.InitiatingUserID})
	}
	return out, nil
}

// replay runs commands on target and collects the ones that fail. Indexes
// are positions in commands.
func (r runner) replay(ctx context.Context, target ids.ContentStreamID, commands []recorded, indexes []int) []event.RebaseError {
	var failures []event.RebaseError
	for i, c := range commands {
		copied := c.Payload.CopyForContentStream(target)
		err := r.streamAs(ctx, copied, c.User)
		if err == nil {
			continue
		}
		failure := event.RebaseError{
			CommandIndex: i,
			CommandType:  string(c.Type),
			Reason:       string(apperrors.GetCode(err)),
			Message:      err.Error(),
		}
		if indexes != nil {
			failure.CommandIndex = indexes[i]
		}
		if addressed, ok := copied.(command.AggregateAddressing); ok {
			failure.NodeAggregateID = addressed.NodeAggregate()
		}
		failures = append(failures, failure)
	}
	return failures
}

func (r runner) rebase(ctx context.Context, p command.RebaseWorkspace) (engine.Result, error) {
	ws, base, err := r.workspaceWithBase(ctx, p.WorkspaceName)
	if err != nil {
		return engine.Result{}, err
	}
	commands, err := r.extract(ctx, ws.CurrentContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	candidate, err := r.streamID(p.RebasedContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: candidate, SourceContentStreamID: base.CurrentContentStreamID}); err != nil {
		return engine.Result{}, err
	}

	failures := r.replay(ctx, candidate, commands, nil)
	if len(failures) > 0 {
		_, err := r.record(ctx, ws.Name, journal.Exactly(ws.Version), event.TypeWorkspaceRebaseFailed, event.WorkspaceRebaseFailed{
			WorkspaceName:            ws.Name,
			CandidateContentStreamID: candidate,
			SourceContentStreamID:    ws.CurrentContentStreamID,
			InitiatingUserID:         r.cmd.InitiatingUserID,
			Errors:                   failures,
		})
		if err != nil {
			return engine.Result{}, err
		}
		metrics.RebaseFinished(metrics.OutcomeFailed)
		return engine.Result{}, conflictError(ws.Name, failures)
	}

	result, err := r.record(ctx, ws.Name, journal.Exactly(ws.Version), event.TypeWorkspaceWasRebased, event.WorkspaceWasRebased{
		WorkspaceName:           ws.Name,
		NewContentStreamID:      candidate,
		PreviousContentStreamID: ws.CurrentContentStreamID,
	})
	if err != nil {
		return engine.Result{}, err
	}
	metrics.RebaseFinished(metrics.OutcomeSuccess)
	return result, r.stream(ctx, command.CloseContentStream{ContentStreamID: ws.CurrentContentStreamID})
}

func (r runner) publish(ctx context.Context, p command.PublishWorkspace) (engine.Result, error) {
	ws, base, err := r.workspaceWithBase(ctx, p.WorkspaceName)
	if err != nil {
		return engine.Result{}, err
	}
	expected, err := r.baseVersion(ctx, ws.CurrentContentStreamID, base.CurrentContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.publishEvents(ctx, ws.CurrentContentStreamID, base.CurrentContentStreamID, expected); err != nil {
		return engine.Result{}, err
	}
	cs, err := r.streamID(p.NewContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: cs, SourceContentStreamID: base.CurrentContentStreamID}); err != nil {
		return engine.Result{}, err
	}
	result, err := r.record(ctx, ws.Name, journal.Exactly(ws.Version), event.TypeWorkspaceWasPublished, event.WorkspaceWasPublished{
		SourceWorkspaceName:           ws.Name,
		TargetWorkspaceName:           base.Name,
		NewSourceContentStreamID:      cs,
		PreviousSourceContentStreamID: ws.CurrentContentStreamID,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return result, r.stream(ctx, command.CloseContentStream{ContentStreamID: ws.CurrentContentStreamID})
}

func (r runner) publishNodes(ctx context.Context, p command.PublishIndividualNodesFromWorkspace) (engine.Result, error) {
	ws, base, err := r.workspaceWithBase(ctx, p.WorkspaceName)
	if err != nil {
		return engine.Result{}, err
	}
	commands, err := r.extract(ctx, ws.CurrentContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	matching, matchingIdx, remaining, remainingIdx := split(commands, p.NodesToPublish)

	matchingCS, err := r.streamID(p.ContentStreamIDForMatchingPart)
	if err != nil {
		return engine.Result{}, err
	}
	remainingCS, err := r.streamID(p.ContentStreamIDForRemainingPart)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: matchingCS, SourceContentStreamID: base.CurrentContentStreamID}); err != nil {
		return engine.Result{}, err
	}
	failures := r.replay(ctx, matchingCS, matching, matchingIdx)
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: remainingCS, SourceContentStreamID: matchingCS}); err != nil {
		return engine.Result{}, err
	}
	failures = append(failures, r.replay(ctx, remainingCS, remaining, remainingIdx)...)
	if len(failures) > 0 {
		return engine.Result{}, conflictError(ws.Name, failures)
	}

	if err := r.catchUp(ctx); err != nil {
		return engine.Result{}, err
	}
	forked, err := r.Graph.ContentStream(ctx, matchingCS)
	if err != nil {
		return engine.Result{}, fmt.Errorf("load content stream %s: %w", matchingCS, err)
	}
	if err := r.publishEvents(ctx, matchingCS, base.CurrentContentStreamID, forked.SourceVersion); err != nil {
		return engine.Result{}, err
	}
	result, err := r.record(ctx, ws.Name, journal.Exactly(ws.Version), event.TypeWorkspaceWasPartiallyPublished, event.WorkspaceWasPartiallyPublished{
		SourceWorkspaceName:           ws.Name,
		TargetWorkspaceName:           base.Name,
		NewSourceContentStreamID:      remainingCS,
		PreviousSourceContentStreamID: ws.CurrentContentStreamID,
		PublishedNodes:                p.NodesToPublish,
	})
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.CloseContentStream{ContentStreamID: ws.CurrentContentStreamID}); err != nil {
		return result, err
	}
	return result, r.stream(ctx, command.CloseContentStream{ContentStreamID: matchingCS})
}

func (r runner) discardNodes(ctx context.Context, p command.DiscardIndividualNodesFromWorkspace) (engine.Result, error) {
	ws, base, err := r.workspaceWithBase(ctx, p.WorkspaceName)
	if err != nil {
		return engine.Result{}, err
	}
	commands, err := r.extract(ctx, ws.CurrentContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	_, _, kept, keptIdx := split(commands, p.NodesToDiscard)

	cs, err := r.streamID(p.NewContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: cs, SourceContentStreamID: base.CurrentContentStreamID}); err != nil {
		return engine.Result{}, err
	}
	if failures := r.replay(ctx, cs, kept, keptIdx); len(failures) > 0 {
		return engine.Result{}, conflictError(ws.Name, failures)
	}
	result, err := r.record(ctx, ws.Name, journal.Exactly(ws.Version), event.TypeWorkspaceWasPartiallyDiscarded, event.WorkspaceWasPartiallyDiscarded{
		WorkspaceName:           ws.Name,
		NewContentStreamID:      cs,
		PreviousContentStreamID: ws.CurrentContentStreamID,
		DiscardedNodes:          p.NodesToDiscard,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return result, r.stream(ctx, command.CloseContentStream{ContentStreamID: ws.CurrentContentStreamID})
}

// split partitions commands by whether they change a selected variant and
// keeps each command's original position.
func split(commands []recorded, selection node.Addresses) (matching []recorded, matchingIdx []int, rest []recorded, restIdx []int) {
	for i, c := range commands {
		if matchesAny(c.Payload, selection) {
			matching = append(matching, c)
			matchingIdx = append(matchingIdx, i)
			continue
		}
		rest = append(rest, c)
		restIdx = append(restIdx, i)
	}
	return matching, matchingIdx, rest, restIdx
}

func matchesAny(c command.Rebasable, selection node.Addresses) bool {
	for _, address := range selection {
		if c.MatchesNodeID(address) {
			return true
		}
	}
	return false
}

// publishEvents copies the events source added after its fork onto target
// in one append. The append fails when target moved past expected.
func (r runner) publishEvents(ctx context.Context, source, target ids.ContentStreamID, expected uint64) error {
	events, err := journal.ReadStreamAll(ctx, r.Journal, event.ContentStreamStream(source))
	if err != nil {
		return fmt.Errorf("read content stream %s: %w", source, err)
	}
	copies := make([]event.Event, 0, len(events))
	for _, evt := range events {
		switch evt.Type {
		case event.TypeContentStreamWasCreated, event.TypeContentStreamWasForked, event.TypeContentStreamWasClosed:
			continue
		}
		retargeted, err := event.Retarget(evt, target)
		if err != nil {
			return err
		}
		vetted, err := r.Events.ValidateForAppend(retargeted)
		if err != nil {
			return fmt.Errorf("publish %s: %w", evt.Type, err)
		}
		copies = append(copies, vetted)
	}
	if len(copies) == 0 {
		return nil
	}
	_, stored, err := r.Journal.Append(ctx, event.ContentStreamStream(target), journal.Exactly(expected), copies)
	if err != nil {
		if errors.Is(err, journal.ErrConcurrency) {
			return apperrors.Wrap(apperrors.CodeBaseWorkspaceModified,
				fmt.Sprintf("content stream %s moved past version %d", target, expected), err)
		}
		return fmt.Errorf("publish onto %s: %w", target, err)
	}
	for _, evt := range stored {
		metrics.EventAppended(string(evt.Type))
	}
	return nil
}

// baseVersion returns the version of base that cs holds. Streams between cs
// and base are matching parts of a partial publish, whose events already
// reached base.
func (r runner) baseVersion(ctx context.Context, cs, base ids.ContentStreamID) (uint64, error) {
	var carried uint64
	current := cs
	for range maxLineage {
		record, err := r.Graph.ContentStream(ctx, current)
		if err != nil {
			return 0, fmt.Errorf("load content stream %s: %w", current, err)
		}
		if record.SourceID == base {
			return record.SourceVersion + carried, nil
		}
		if record.SourceID == "" {
			break
		}
		// The source held its fork event plus its own events.
		carried += record.SourceVersion - 1
		current = record.SourceID
	}
	return 0, apperrors.WithMetadata(apperrors.CodeBaseWorkspaceModified,
		fmt.Sprintf("content stream %s is not based on %s", cs, base),
		map[string]string{"content_stream_id": string(cs)})
}
