// Package workspace runs the workspace commands: creation, rebase, publish
// and discard. Each one is a sequence of content stream commands followed by
// one event on the workspace's own stream.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/platform/metrics"
	platformotel "github.com/louisbranch/contentgraph/internal/platform/otel"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

var (
	// ErrStreamHandlerRequired indicates a missing content stream command handler.
	ErrStreamHandlerRequired = errors.New("content stream command handler is required")
	// ErrNotWorkspaceCommand indicates a command the engine does not run.
	ErrNotWorkspaceCommand = errors.New("command is not a workspace command")
	// ErrReadModelRequired indicates a missing workspace or graph reader.
	ErrReadModelRequired = errors.New("workspace and content graph readers are required")
)

// StreamHandler runs content stream commands.
type StreamHandler interface {
	Handle(ctx context.Context, cmd command.Command) (engine.Result, error)
}

// Engine runs workspace commands.
type Engine struct {
	Commands   *command.Registry
	Events     *event.Registry
	Journal    journal.Store
	Streams    StreamHandler
	Workspaces storage.WorkspaceReader
	Graph      storage.ContentGraphReader
	// CatchUp brings every projection up to the journal head before the
	// engine reads workspace or stream records.
	CatchUp func(ctx context.Context) error
	NewID   id.Generator
	Now     func() time.Time
}

// Handle runs one workspace command. The result holds the events stored on
// the workspace stream.
func (e Engine) Handle(ctx context.Context, cmd command.Command) (engine.Result, error) {
	ctx, span := platformotel.Tracer().Start(ctx, "contentgraph.workspace.handle")
	defer span.End()
	span.SetAttributes(attribute.String("command.type", string(cmd.Type)))

	result, err := e.handle(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.CommandHandled(string(cmd.Type), outcomeOf(err))
		return engine.Result{}, err
	}
	metrics.CommandHandled(string(cmd.Type), metrics.OutcomeAccepted)
	for _, evt := range result.Events {
		metrics.EventAppended(string(evt.Type))
	}
	return result, nil
}

func (e Engine) handle(ctx context.Context, cmd command.Command) (engine.Result, error) {
	if err := e.check(); err != nil {
		return engine.Result{}, err
	}
	if !command.IsWorkspaceCommand(cmd.Type) {
		return engine.Result{}, fmt.Errorf("%w: %s", ErrNotWorkspaceCommand, cmd.Type)
	}
	validated, err := e.Commands.ValidateForDecision(cmd)
	if err != nil {
		return engine.Result{}, apperrors.Wrap(apperrors.CodeValidationFailed, err.Error(), err)
	}
	payload, err := e.Commands.Decode(validated)
	if err != nil {
		return engine.Result{}, apperrors.Wrap(apperrors.CodeValidationFailed, err.Error(), err)
	}
	if err := e.catchUp(ctx); err != nil {
		return engine.Result{}, err
	}

	run := runner{Engine: e, cmd: validated}
	switch p := payload.(type) {
	case command.CreateRootWorkspace:
		return run.createRoot(ctx, p)
	case command.CreateWorkspace:
		return run.create(ctx, p)
	case command.RebaseWorkspace:
		return run.rebase(ctx, p)
	case command.PublishWorkspace:
		return run.publish(ctx, p)
	case command.PublishIndividualNodesFromWorkspace:
		return run.publishNodes(ctx, p)
	case command.DiscardWorkspace:
		return run.discard(ctx, p)
	case command.DiscardIndividualNodesFromWorkspace:
		return run.discardNodes(ctx, p)
	default:
		return engine.Result{}, fmt.Errorf("%w: %s", ErrNotWorkspaceCommand, validated.Type)
	}
}

func (e Engine) check() error {
	switch {
	case e.Commands == nil:
		return engine.ErrCommandRegistryRequired
	case e.Events == nil:
		return engine.ErrEventRegistryRequired
	case e.Journal == nil:
		return engine.ErrJournalRequired
	case e.Streams == nil:
		return ErrStreamHandlerRequired
	case e.Workspaces == nil, e.Graph == nil:
		return ErrReadModelRequired
	}
	return nil
}

func (e Engine) catchUp(ctx context.Context) error {
	if e.CatchUp == nil {
		return nil
	}
	if err := e.CatchUp(ctx); err != nil {
		return fmt.Errorf("catch up projections: %w", err)
	}
	return nil
}

func (e Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// runner carries the workspace command being executed so the content stream
// commands it issues inherit its user and request id.
type runner struct {
	Engine
	cmd command.Command
}

func (r runner) workspace(ctx context.Context, name ids.WorkspaceName) (storage.WorkspaceRecord, error) {
	record, err := r.Workspaces.GetWorkspace(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.WorkspaceRecord{}, apperrors.WithMetadata(apperrors.CodeWorkspaceNotFound,
			fmt.Sprintf("workspace %s does not exist", name),
			map[string]string{"workspace_name": string(name)})
	}
	if err != nil {
		return storage.WorkspaceRecord{}, fmt.Errorf("load workspace %s: %w", name, err)
	}
	return record, nil
}

// workspaceWithBase loads a workspace and its base.
func (r runner) workspaceWithBase(ctx context.Context, name ids.WorkspaceName) (storage.WorkspaceRecord, storage.WorkspaceRecord, error) {
	ws, err := r.workspace(ctx, name)
	if err != nil {
		return storage.WorkspaceRecord{}, storage.WorkspaceRecord{}, err
	}
	if ws.IsRoot() {
		return storage.WorkspaceRecord{}, storage.WorkspaceRecord{}, apperrors.WithMetadata(apperrors.CodeWorkspaceHasNoBase,
			fmt.Sprintf("workspace %s has no base workspace", name),
			map[string]string{"workspace_name": string(name)})
	}
	base, err := r.workspace(ctx, ws.BaseName)
	if err != nil {
		return storage.WorkspaceRecord{}, storage.WorkspaceRecord{}, err
	}
	return ws, base, nil
}

func (r runner) streamID(given ids.ContentStreamID) (ids.ContentStreamID, error) {
	if given != "" {
		return given, nil
	}
	newID := r.NewID
	if newID == nil {
		newID = id.NewID
	}
	value, err := newID()
	if err != nil {
		return "", err
	}
	return ids.ContentStreamID(value), nil
}

// stream runs one content stream command on behalf of the workspace command.
func (r runner) stream(ctx context.Context, payload command.Payload) error {
	return r.streamAs(ctx, payload, r.cmd.InitiatingUserID)
}

func (r runner) streamAs(ctx context.Context, payload command.Payload, user ids.UserID) error {
	next, err := command.New(payload, user)
	if err != nil {
		return err
	}
	next.RequestID = r.cmd.RequestID
	_, err = r.Streams.Handle(ctx, next)
	return err
}

// record appends one workspace event at the expected workspace version.
func (r runner) record(ctx context.Context, name ids.WorkspaceName, expected journal.ExpectedVersion, eventType event.Type, payload any) (engine.Result, error) {
	stream := event.WorkspaceStream(name)
	evt, err := event.New(stream, eventType, payload, r.now())
	if err != nil {
		return engine.Result{}, err
	}
	evt.Metadata.InitiatingUserID = r.cmd.InitiatingUserID
	evt.Metadata.CorrelationID = r.cmd.RequestID
	evt.Metadata.CommandType = string(r.cmd.Type)
	evt.Metadata.CommandPayload = append([]byte(nil), r.cmd.PayloadJSON...)
	vetted, err := r.Events.ValidateForAppend(evt)
	if err != nil {
		return engine.Result{}, fmt.Errorf("%s emitted invalid event: %w", r.cmd.Type, err)
	}
	version, stored, err := r.Journal.Append(ctx, stream, expected, []event.Event{vetted})
	if err != nil {
		if errors.Is(err, journal.ErrConcurrency) {
			return engine.Result{}, apperrors.Wrap(apperrors.CodeConcurrencyConflict, err.Error(), err)
		}
		return engine.Result{}, fmt.Errorf("append workspace event: %w", err)
	}
	return engine.Result{Events: stored, Version: version}, nil
}

func (r runner) createRoot(ctx context.Context, p command.CreateRootWorkspace) (engine.Result, error) {
	if err := r.ensureAbsent(ctx, p.WorkspaceName); err != nil {
		return engine.Result{}, err
	}
	cs, err := r.streamID(p.NewContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.CreateContentStream{ContentStreamID: cs}); err != nil {
		return engine.Result{}, err
	}
	return r.record(ctx, p.WorkspaceName, journal.ExpectedNoStream, event.TypeRootWorkspaceWasCreated, event.RootWorkspaceWasCreated{
		WorkspaceName:      p.WorkspaceName,
		NewContentStreamID: cs,
		Title:              p.Title,
		Description:        p.Description,
	})
}

func (r runner) create(ctx context.Context, p command.CreateWorkspace) (engine.Result, error) {
	if err := r.ensureAbsent(ctx, p.WorkspaceName); err != nil {
		return engine.Result{}, err
	}
	base, err := r.workspace(ctx, p.BaseWorkspaceName)
	if err != nil {
		return engine.Result{}, err
	}
	cs, err := r.streamID(p.NewContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: cs, SourceContentStreamID: base.CurrentContentStreamID}); err != nil {
		return engine.Result{}, err
	}
	return r.record(ctx, p.WorkspaceName, journal.ExpectedNoStream, event.TypeWorkspaceWasCreated, event.WorkspaceWasCreated{
		WorkspaceName:      p.WorkspaceName,
		BaseWorkspaceName:  p.BaseWorkspaceName,
		NewContentStreamID: cs,
		Title:              p.Title,
		Description:        p.Description,
		WorkspaceOwner:     p.WorkspaceOwner,
	})
}

func (r runner) ensureAbsent(ctx context.Context, name ids.WorkspaceName) error {
	_, err := r.Workspaces.GetWorkspace(ctx, name)
	switch {
	case err == nil:
		return apperrors.WithMetadata(apperrors.CodeWorkspaceAlreadyExists,
			fmt.Sprintf("workspace %s already exists", name),
			map[string]string{"workspace_name": string(name)})
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("load workspace %s: %w", name, err)
	}
}

func (r runner) discard(ctx context.Context, p command.DiscardWorkspace) (engine.Result, error) {
	ws, base, err := r.workspaceWithBase(ctx, p.WorkspaceName)
	if err != nil {
		return engine.Result{}, err
	}
	cs, err := r.streamID(p.NewContentStreamID)
	if err != nil {
		return engine.Result{}, err
	}
	if err := r.stream(ctx, command.ForkContentStream{ContentStreamID: cs, SourceContentStreamID: base.CurrentContentStreamID}); err != nil {
		return engine.Result{}, err
	}
	result, err := r.record(ctx, ws.Name, journal.Exactly(ws.Version), event.TypeWorkspaceWasDiscarded, event.WorkspaceWasDiscarded{
		WorkspaceName:           ws.Name,
		NewContentStreamID:      cs,
		PreviousContentStreamID: ws.CurrentContentStreamID,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return result, r.stream(ctx, command.CloseContentStream{ContentStreamID: ws.CurrentContentStreamID})
}

func outcomeOf(err error) string {
	code := apperrors.GetCode(err)
	switch {
	case code.IsConcurrency():
		return metrics.OutcomeConflict
	case code.IsValidation():
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
