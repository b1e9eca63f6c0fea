package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/contentgraph/internal/platform/id"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/command"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/contentstream"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/engine"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/event"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/ids"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/journal"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/nodeaggregate"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/workspace"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/projection"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/projection/catchup"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/settings"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage"
	badgerstore "github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/badger"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/integrity"
	storagesqlite "github.com/louisbranch/contentgraph/internal/services/contentrepository/storage/sqlite"
)

// EventStore is a journal that can also enumerate and verify its streams.
type EventStore interface {
	journal.Store
	ListStreams(ctx context.Context) ([]event.StreamName, error)
	VerifyIntegrity(ctx context.Context) (integrity.Report, error)
	Close() error
}

// ProjectionStore holds the projection tables and answers every read model
// query.
type ProjectionStore interface {
	storage.ProjectionStore
	storage.ContentGraphReader
	storage.HiddenStateReader
	storage.WorkspaceReader
	Close() error
}

var (
	_ EventStore      = (*storagesqlite.EventStore)(nil)
	_ EventStore      = (*badgerstore.EventStore)(nil)
	_ ProjectionStore = (*storagesqlite.ProjectionStore)(nil)
)

// Options assembles a Repository from already opened stores.
type Options struct {
	Events      EventStore
	Projections ProjectionStore
	Settings    settings.Repository
	// Registries default to the full command and event catalogs.
	Commands     *command.Registry
	EventCatalog *event.Registry
	Now          func() time.Time
	NewID        id.Generator
}

// Repository is one content repository: event store, projections and the
// engines that write to them.
type Repository struct {
	events      EventStore
	projections ProjectionStore
	driver      *catchup.Driver
	streams     engine.Handler
	workspaces  workspace.Engine
}

// New wires a Repository. It takes ownership of both stores.
func New(opts Options) (*Repository, error) {
	if opts.Events == nil {
		return nil, engine.ErrJournalRequired
	}
	if opts.Projections == nil {
		return nil, errors.New("projection store is required")
	}
	if opts.Settings.Dimensions == nil || opts.Settings.NodeTypes == nil {
		return nil, errors.New("dimension resolver and node types are required")
	}
	commands := opts.Commands
	if commands == nil {
		var err error
		if commands, err = command.NewDefaultRegistry(); err != nil {
			return nil, fmt.Errorf("command registry: %w", err)
		}
	}
	events := opts.EventCatalog
	if events == nil {
		var err error
		if events, err = event.NewDefaultRegistry(); err != nil {
			return nil, fmt.Errorf("event registry: %w", err)
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = id.NewID
	}

	driver, err := catchup.New(opts.Events, events, []projection.Projection{
		projection.NewContentGraph(opts.Projections),
		projection.NewHiddenState(opts.Projections),
		projection.NewWorkspace(opts.Projections),
	})
	if err != nil {
		return nil, fmt.Errorf("catch-up driver: %w", err)
	}
	nodes, err := nodeaggregate.New(opts.Settings.Dimensions, opts.Settings.NodeTypes)
	if err != nil {
		return nil, fmt.Errorf("node aggregate decider: %w", err)
	}
	deciders, err := engine.Merge(contentstream.Deciders(), nodes.Deciders())
	if err != nil {
		return nil, fmt.Errorf("merge deciders: %w", err)
	}

	streams := engine.Handler{
		Commands: commands,
		Events:   events,
		Journal:  opts.Events,
		StateLoader: engine.ProjectionStateLoader{
			CatchUp: driver.CatchUpFunc(storage.ProjectionContentGraph),
			Graph:   opts.Projections,
		},
		Deciders: deciders,
		Now:      now,
	}
	return &Repository{
		events:      opts.Events,
		projections: opts.Projections,
		driver:      driver,
		streams:     streams,
		workspaces: workspace.Engine{
			Commands:   commands,
			Events:     events,
			Journal:    opts.Events,
			Streams:    streams,
			Workspaces: opts.Projections,
			Graph:      opts.Projections,
			CatchUp:    driver.CatchUpAll,
			NewID:      newID,
			Now:        now,
		},
	}, nil
}

// Open loads the settings file and opens the stores named by cfg.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loaded, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	built, err := loaded.Build()
	if err != nil {
		return nil, err
	}
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load event keyring: %w", err)
	}
	events, err := openEventStore(ctx, cfg, keyring)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(cfg.ProjectionsDBPath); err != nil {
		_ = events.Close()
		return nil, err
	}
	projections, err := storagesqlite.OpenProjections(ctx, cfg.ProjectionsDBPath)
	if err != nil {
		_ = events.Close()
		return nil, fmt.Errorf("open projections store: %w", err)
	}
	repo, err := New(Options{Events: events, Projections: projections, Settings: built})
	if err != nil {
		_ = events.Close()
		_ = projections.Close()
		return nil, err
	}
	return repo, nil
}

func openEventStore(ctx context.Context, cfg Config, keyring *integrity.Keyring) (EventStore, error) {
	validator, err := event.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("event registry: %w", err)
	}
	switch cfg.EventStore {
	case EventStoreBadger:
		if err := ensureDir(cfg.BadgerPath); err != nil {
			return nil, err
		}
		store, err := badgerstore.Open(badgerstore.DefaultConfig(cfg.BadgerPath), keyring, validator)
		if err != nil {
			return nil, fmt.Errorf("open badger event store: %w", err)
		}
		return store, nil
	default:
		if err := ensureDir(cfg.EventsDBPath); err != nil {
			return nil, err
		}
		store, err := storagesqlite.OpenEvents(ctx, cfg.EventsDBPath, keyring, validator)
		if err != nil {
			return nil, fmt.Errorf("open sqlite event store: %w", err)
		}
		return store, nil
	}
}

// Handle runs one command and catches up every projection afterwards, so
// reads issued after Handle returns see its events. A failed workspace
// command may still have stored events, so catch-up runs on errors too.
func (r *Repository) Handle(ctx context.Context, cmd command.Command) (engine.Result, error) {
	if r == nil {
		return engine.Result{}, errors.New("repository is not configured")
	}
	var (
		result engine.Result
		err    error
	)
	if command.IsWorkspaceCommand(cmd.Type) {
		result, err = r.workspaces.Handle(ctx, cmd)
	} else {
		result, err = r.streams.Handle(ctx, cmd)
	}
	if catchUpErr := r.CatchUp(ctx); catchUpErr != nil {
		if err != nil {
			log.Printf("catch up after failed %s: %v", cmd.Type, catchUpErr)
			return engine.Result{}, err
		}
		return result, catchUpErr
	}
	return result, err
}

// Submit encodes payload as a command from user and handles it.
func (r *Repository) Submit(ctx context.Context, payload command.Payload, user ids.UserID) (engine.Result, error) {
	cmd, err := command.New(payload, user)
	if err != nil {
		return engine.Result{}, err
	}
	return r.Handle(ctx, cmd)
}

// CatchUp brings every projection up to the journal head.
func (r *Repository) CatchUp(ctx context.Context) error {
	if err := r.driver.CatchUpAll(ctx); err != nil {
		return fmt.Errorf("catch up projections: %w", err)
	}
	return nil
}

// Projections returns the catch-up driver.
func (r *Repository) Projections() *catchup.Driver {
	return r.driver
}

// Graph returns the content graph read model.
func (r *Repository) Graph() storage.ContentGraphReader {
	return r.projections
}

// HiddenState returns the hidden state read model.
func (r *Repository) HiddenState() storage.HiddenStateReader {
	return r.projections
}

// Workspaces returns the workspace read model.
func (r *Repository) Workspaces() storage.WorkspaceReader {
	return r.projections
}

// Events returns the event store.
func (r *Repository) Events() EventStore {
	return r.events
}

// Close closes both stores. It is nil-safe.
func (r *Repository) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			log.Printf("close event store: %v", err)
			errs = append(errs, err)
		}
	}
	if r.projections != nil {
		if err := r.projections.Close(); err != nil {
			log.Printf("close projections store: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
