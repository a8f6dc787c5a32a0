package cli

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/planbuilder/internal/clock"
	"github.com/roach88/planbuilder/internal/editor"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/remote"
	"github.com/roach88/planbuilder/internal/saga"
	"github.com/roach88/planbuilder/internal/store"
)

// session is one command's editing pipeline: SQLite store, saga engine
// loop and an editor loaded with a single collection.
type session struct {
	store  *store.Store
	engine *saga.Engine
	editor *editor.Editor
	events *notify.Recorder

	cancel context.CancelFunc
	group  *errgroup.Group
}

func openStore(opts *RootOptions) (*store.Store, error) {
	st, err := store.Open(opts.Config.Database, store.WithActor(opts.Config.Actor))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openSession starts the engine loop and loads collection. Extra sinks
// receive every notification alongside the log.
func openSession(ctx context.Context, opts *RootOptions, collection string, sinks ...notify.Sink) (*session, error) {
	st, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	events := &notify.Recorder{}
	sink := append(notify.Multi{events, notify.Logger{L: opts.Logger}}, sinks...)
	seq := clock.NewSeq()
	eng := saga.NewEngine(
		saga.WithSink(sink),
		saga.WithSeq(seq),
		saga.WithActor(opts.Config.Actor),
	)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := eng.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	s := &session{
		store:  st,
		engine: eng,
		events: events,
		cancel: cancel,
		group:  g,
	}

	ed, err := editor.New(editor.Options{
		Collection:  collection,
		Backend:     st,
		Engine:      eng,
		Clock:       clock.Real{},
		QuietPeriod: opts.Config.QuietPeriod,
		Sink:        sink,
		Seq:         seq,
		Actor:       opts.Config.Actor,
	})
	if err != nil {
		s.shutdown()
		return nil, WrapExitError(ExitCommandError, "failed to create editor", err)
	}
	s.editor = ed

	if err := ed.Load(ctx); err != nil {
		s.Close()
		if remote.IsNotFound(err) {
			return nil, WrapExitError(ExitCommandError, "collection not found", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load collection", err)
	}
	return s, nil
}

// Close abandons unflushed reorders, drains the engine and closes the
// database.
func (s *session) Close() error {
	if s.editor != nil {
		s.editor.Close()
	}
	return s.shutdown()
}

func (s *session) shutdown() error {
	s.engine.Stop()
	err := s.group.Wait()
	s.cancel()
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}
