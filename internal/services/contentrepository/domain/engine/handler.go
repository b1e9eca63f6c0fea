package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/platform/metrics"
	platformotel "github.com/louisbranch/contentgraph/internal/platform/otel"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
)

var (
	// ErrCommandRegistryRequired indicates a missing command registry.
	ErrCommandRegistryRequired = errors.New("command registry is required")
	// ErrEventRegistryRequired indicates a missing event registry.
	ErrEventRegistryRequired = errors.New("event registry is required")
	// ErrJournalRequired indicates a missing event store.
	ErrJournalRequired = errors.New("journal is required")
	// ErrStateLoaderRequired indicates a missing state loader.
	ErrStateLoaderRequired = errors.New("state loader is required")
	// ErrDeciderNotRegistered indicates a command type without a decider.
	ErrDeciderNotRegistered = errors.New("no decider registered for command type")
	// ErrNotStreamCommand indicates a command that does not target a content
	// stream, such as a workspace command.
	ErrNotStreamCommand = errors.New("command does not target a content stream")
)

// Input is what a decider receives besides the snapshot.
type Input struct {
	Command command.Command
	Payload command.StreamCommand
	Now     time.Time
}

// DecideFunc decides one command kind. An error means the decision could not
// be computed; business rule violations are rejections.
type DecideFunc func(ctx context.Context, snap Snapshot, in Input) (command.Decision, error)

// Deciders is a dispatch table from command type to decider.
type Deciders map[command.Type]DecideFunc

// Merge returns a table holding the entries of every table. Duplicate command
// types are a wiring error.
func Merge(tables ...Deciders) (Deciders, error) {
	merged := make(Deciders)
	for _, table := range tables {
		for cmdType, fn := range table {
			if _, exists := merged[cmdType]; exists {
				return nil, fmt.Errorf("decider registered twice for %s", cmdType)
			}
			merged[cmdType] = fn
		}
	}
	return merged, nil
}

// Handler validates, decides and appends content stream commands.
type Handler struct {
	Commands    *command.Registry
	Events      *event.Registry
	Journal     journal.Store
	StateLoader StateLoader
	Deciders    Deciders
	Now         func() time.Time
}

// Result captures the stored outcome of a command.
type Result struct {
	Events  []event.Event
	Version uint64
}

// Handle runs one command to completion or returns a coded error.
func (h Handler) Handle(ctx context.Context, cmd command.Command) (Result, error) {
	ctx, span := platformotel.Tracer().Start(ctx, "contentgraph.command.handle")
	defer span.End()
	span.SetAttributes(attribute.String("command.type", string(cmd.Type)))

	result, err := h.handle(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.CommandHandled(string(cmd.Type), outcomeOf(err))
		return Result{}, err
	}
	metrics.CommandHandled(string(cmd.Type), metrics.OutcomeAccepted)
	for _, evt := range result.Events {
		metrics.EventAppended(string(evt.Type))
	}
	return result, nil
}

func (h Handler) handle(ctx context.Context, cmd command.Command) (Result, error) {
	if err := h.check(); err != nil {
		return Result{}, err
	}
	validated, err := h.Commands.ValidateForDecision(cmd)
	if err != nil {
		return Result{}, validationError(err)
	}
	cmd = validated
	decoded, err := h.Commands.Decode(cmd)
	if err != nil {
		return Result{}, validationError(err)
	}
	payload, ok := decoded.(command.StreamCommand)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotStreamCommand, cmd.Type)
	}
	cs := payload.ContentStream()

	snap, err := h.StateLoader.Load(ctx, cs)
	if err != nil {
		return Result{}, err
	}
	if !startsStream(cmd.Type) {
		if !snap.Exists {
			return Result{}, apperrors.WithMetadata(apperrors.CodeContentStreamNotFound,
				fmt.Sprintf("content stream %s does not exist", cs),
				map[string]string{"content_stream_id": string(cs)})
		}
		if snap.Stream.IsClosed() {
			return Result{}, apperrors.WithMetadata(apperrors.CodeContentStreamClosed,
				fmt.Sprintf("content stream %s is closed", cs),
				map[string]string{"content_stream_id": string(cs)})
		}
	}

	decide, ok := h.Deciders[cmd.Type]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrDeciderNotRegistered, cmd.Type)
	}
	now := h.Now
	if now == nil {
		now = time.Now
	}
	decision, err := decide(ctx, snap, Input{Command: cmd, Payload: payload, Now: now().UTC()})
	if err != nil {
		return Result{}, err
	}
	if err := decision.Validate(); err != nil {
		return Result{}, fmt.Errorf("%s: %w", cmd.Type, err)
	}
	if len(decision.Rejections) > 0 {
		return Result{}, rejectionError(cmd.Type, decision.Rejections)
	}

	stream := event.ContentStreamStream(cs)
	events := make([]event.Event, 0, len(decision.Events))
	for i, evt := range decision.Events {
		evt.Metadata.InitiatingUserID = cmd.InitiatingUserID
		evt.Metadata.CorrelationID = cmd.RequestID
		if i == 0 {
			evt.Metadata.CommandType = string(cmd.Type)
			evt.Metadata.CommandPayload = append([]byte(nil), cmd.PayloadJSON...)
		}
		vetted, err := h.Events.ValidateForAppend(evt)
		if err != nil {
			return Result{}, fmt.Errorf("%s emitted invalid event: %w", cmd.Type, err)
		}
		if vetted.StreamName != stream {
			return Result{}, fmt.Errorf("%s emitted event for %s, want %s", cmd.Type, vetted.StreamName, stream)
		}
		events = append(events, vetted)
	}

	expected := journal.ExpectedNoStream
	if snap.Exists {
		expected = journal.Exactly(snap.Version())
	}
	if cmd.ExpectedVersion != nil {
		expected = journal.Exactly(*cmd.ExpectedVersion)
	}
	version, stored, err := h.Journal.Append(ctx, stream, expected, events)
	if err != nil {
		return Result{}, appendError(err)
	}
	return Result{Events: stored, Version: version}, nil
}

func (h Handler) check() error {
	switch {
	case h.Commands == nil:
		return ErrCommandRegistryRequired
	case h.Events == nil:
		return ErrEventRegistryRequired
	case h.Journal == nil:
		return ErrJournalRequired
	case h.StateLoader == nil:
		return ErrStateLoaderRequired
	}
	return nil
}

func startsStream(cmdType command.Type) bool {
	return cmdType == command.TypeCreateContentStream || cmdType == command.TypeForkContentStream
}

// NewEvent builds an event on the command's content stream.
func NewEvent(in Input, eventType event.Type, payload any) (event.Event, error) {
	return event.New(event.ContentStreamStream(in.Payload.ContentStream()), eventType, payload, in.Now)
}

// Reject builds a single-rejection decision with a platform code.
func Reject(code apperrors.Code, format string, args ...any) command.Decision {
	return command.Reject(command.Rejection{Code: string(code), Message: fmt.Sprintf(format, args...)})
}
