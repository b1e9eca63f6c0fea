// Package contentstream decides the content stream lifecycle commands.
package contentstream

import (
	"context"
	"errors"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
)

// Deciders returns the dispatch entries for content stream commands.
func Deciders() engine.Deciders {
	return engine.Deciders{
		command.TypeCreateContentStream: decideCreate,
		command.TypeForkContentStream:   decideFork,
		command.TypeCloseContentStream:  decideClose,
	}
}

func decideCreate(_ context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.CreateContentStream)
	if snap.Exists {
		return engine.Reject(apperrors.CodeContentStreamAlreadyExists, "content stream %s already exists", p.ContentStreamID), nil
	}
	evt, err := engine.NewEvent(in, event.TypeContentStreamWasCreated, event.ContentStreamWasCreated{
		ContentStreamID: p.ContentStreamID,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}

func decideFork(ctx context.Context, snap engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.ForkContentStream)
	if snap.Exists {
		return engine.Reject(apperrors.CodeContentStreamAlreadyExists, "content stream %s already exists", p.ContentStreamID), nil
	}
	source, err := snap.Graph.ContentStream(ctx, p.SourceContentStreamID)
	if errors.Is(err, storage.ErrNotFound) {
		return engine.Reject(apperrors.CodeContentStreamNotFound, "source content stream %s does not exist", p.SourceContentStreamID), nil
	}
	if err != nil {
		return command.Decision{}, err
	}
	if source.IsClosed() {
		return engine.Reject(apperrors.CodeContentStreamClosed, "source content stream %s is closed", p.SourceContentStreamID), nil
	}
	evt, err := engine.NewEvent(in, event.TypeContentStreamWasForked, event.ContentStreamWasForked{
		ContentStreamID:              p.ContentStreamID,
		SourceContentStreamID:        p.SourceContentStreamID,
		VersionOfSourceContentStream: source.Version,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}

func decideClose(_ context.Context, _ engine.Snapshot, in engine.Input) (command.Decision, error) {
	p := in.Payload.(command.CloseContentStream)
	evt, err := engine.NewEvent(in, event.TypeContentStreamWasClosed, event.ContentStreamWasClosed{
		ContentStreamID: p.ContentStreamID,
	})
	if err != nil {
		return command.Decision{}, err
	}
	return command.Accept(evt), nil
}
