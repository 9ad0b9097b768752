package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"reelpost/internal/approval"
	"reelpost/internal/database"
	"reelpost/internal/library"
	"reelpost/internal/startup"
)

// jobRunner triggers the scheduled pipelines on demand.
type jobRunner interface {
	RunDownload(ctx context.Context) error
	RunPostSlot(ctx context.Context) error
}

type Handlers struct {
	db       *database.Database
	library  *library.Library
	broker   *approval.Broker
	jobs     jobRunner
	reelsDir string
	started  time.Time

	ready           atomic.Bool
	downloadRunning atomic.Bool
	postRunning     atomic.Bool
}

func New(db *database.Database, lib *library.Library, broker *approval.Broker, jobs jobRunner, config *startup.Config) *Handlers {
	return &Handlers{
		db:       db,
		library:  lib,
		broker:   broker,
		jobs:     jobs,
		reelsDir: config.ReelsDir,
		started:  time.Now(),
	}
}

// MarkReady flips the readiness probe once startup has completed.
func (h *Handlers) MarkReady() {
	h.ready.Store(true)
}
