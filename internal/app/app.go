// Package app wires the store, catalog, workflow machine, consumers and
// engine into one runnable unit and exposes the host operations the CLI,
// HTTP API and scenario harness drive.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/dirsync/internal/catalog"
	"github.com/roach88/dirsync/internal/compiler"
	"github.com/roach88/dirsync/internal/consumer"
	"github.com/roach88/dirsync/internal/correction"
	"github.com/roach88/dirsync/internal/dedup"
	"github.com/roach88/dirsync/internal/engine"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/relation"
	"github.com/roach88/dirsync/internal/store"
	"github.com/roach88/dirsync/internal/workflow"
)

// Options configures Open.
type Options struct {
	// Database is the SQLite path. Created when missing.
	Database string

	// Profile is the compiled domain profile. Nil selects the embedded default.
	Profile *model.Profile

	// MaxSteps bounds events per session. Zero keeps engine.DefaultMaxSteps.
	MaxSteps int

	// Tracer receives consumer and workflow spans. Nil disables tracing.
	Tracer trace.Tracer

	// IDs generates item ids, WorkflowIDs workflow ids and Sessions session
	// ids. All default to UUIDv7; WorkflowIDs falls back to IDs. Tests and
	// golden scenarios pass sequences.
	IDs         engine.TokenGenerator
	WorkflowIDs engine.TokenGenerator
	Sessions    engine.TokenGenerator
}

// App is a wired dirsync instance.
type App struct {
	Store       *store.Store
	Catalog     *catalog.Catalog
	Resolver    *relation.Resolver
	Corrections *correction.Engine
	Dedup       *dedup.Service
	Workflow    *workflow.Machine
	Engine      *engine.Engine
}

// Open opens the database, seeds collections and relationship types from
// the profile and builds the engine with every consumer registered.
func Open(ctx context.Context, opts Options) (*App, error) {
	p := opts.Profile
	if p == nil {
		var err error
		if p, err = compiler.DefaultProfile(); err != nil {
			return nil, fmt.Errorf("load default profile: %w", err)
		}
	}
	ids := opts.IDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	wfIDs := opts.WorkflowIDs
	if wfIDs == nil {
		wfIDs = ids
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = engine.UUIDv7Generator{}
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c := catalog.New(st, p, ids)
	if err := c.Bootstrap(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("bootstrap catalog: %w", err)
	}

	r := relation.New(c)
	ce := correction.NewEngine(c, r)
	d := dedup.New(st)

	var wfOpts []workflow.Option
	engOpts := []engine.EngineOption{}
	if opts.Tracer != nil {
		wfOpts = append(wfOpts, workflow.WithTracer(opts.Tracer))
		engOpts = append(engOpts, engine.WithTracer(opts.Tracer))
	}
	if opts.MaxSteps > 0 {
		engOpts = append(engOpts, engine.WithMaxSteps(opts.MaxSteps))
	}
	wf := workflow.New(c, r, ce, d, wfIDs, wfOpts...)

	consumers := consumer.All(consumer.Deps{Catalog: c, Resolver: r, Corrections: ce, Workflow: wf})
	eng := engine.New(st, consumers, sessions, engOpts...)

	slog.Debug("app ready",
		"database", opts.Database,
		"entities", len(p.Entities),
		"consumers", eng.Consumers(),
	)

	return &App{
		Store:       st,
		Catalog:     c,
		Resolver:    r,
		Corrections: ce,
		Dedup:       d,
		Workflow:    wf,
		Engine:      eng,
	}, nil
}

// Close closes the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// LoadProfile compiles the profile at path, or returns the embedded default
// when path is empty.
func LoadProfile(path string) (*model.Profile, error) {
	if path == "" {
		return compiler.DefaultProfile()
	}
	return compiler.LoadProfile(path)
}
