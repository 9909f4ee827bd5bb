// Package game drives games through CREATED, STARTED and ENDED, links them to
// their participants and reconciles results with the match worker.
package game

import (
	"context"
	"errors"
	"net/http"
	"time"

	"battlebots/internal/events"
	"battlebots/internal/lock"
	"battlebots/internal/store"
	"battlebots/internal/upload"
	"battlebots/internal/worker"
	"battlebots/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrBadRequest marks input the orchestrator refuses to act on.
var ErrBadRequest = errors.New("bad request")

type (
	GameResponse  = models.Response[*models.GameResource]
	GamesResponse = models.Response[[]models.GameResource]
	// DeleteResponse carries true when a game was removed.
	DeleteResponse = models.Response[bool]
)

// Uploader is the part of the upload coordinator the orchestrator needs.
type Uploader interface {
	Run(ctx context.Context, tasks []upload.Task) ([]upload.Result, error)
	Discard(ctx context.Context, results []upload.Result)
}

// Deps are the collaborators of an Orchestrator. Store, Worker and Uploads are required.
type Deps struct {
	Store   store.Store
	Worker  worker.Client
	Uploads Uploader
	Locker  lock.Locker
	Events  events.Publisher
	Logger  *zap.Logger
	Now     func() time.Time
	// LiveURL is stored as the live relay address of every ended stream.
	LiveURL string
}

type Orchestrator struct {
	store   store.Store
	worker  worker.Client
	uploads Uploader
	locker  lock.Locker
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time
	liveURL string
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		store:   d.Store,
		worker:  d.Worker,
		uploads: d.Uploads,
		locker:  d.Locker,
		events:  d.Events,
		logger:  d.Logger,
		now:     d.Now,
		liveURL: d.LiveURL,
	}
	if o.locker == nil {
		o.locker = lock.NewKeyedMutex(5 * time.Second)
	}
	if o.events == nil {
		o.events = events.NewNoop()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o *Orchestrator) lockGame(ctx context.Context, id uint) (func(), error) {
	return o.locker.Lock(ctx, lock.GameKey(id))
}

func (o *Orchestrator) publish(ctx context.Context, typ string, id uint, status models.GameStatus, data interface{}) {
	if err := o.events.Publish(ctx, events.NewEvent(typ, id, status, data)); err != nil {
		o.logger.Error("Failed to publish game event", zap.String("type", typ), zap.Uint("game", id), zap.Error(err))
	}
}

// step is one relation write whose failure must not fail the operation.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// runIsolated runs the steps concurrently and waits for all of them. Failures
// are logged and dropped.
func (o *Orchestrator) runIsolated(ctx context.Context, gameID uint, steps ...step) {
	var g errgroup.Group
	for _, s := range steps {
		s := s
		g.Go(func() error {
			if err := s.run(ctx); err != nil {
				o.logger.Error("Relation step failed", zap.String("step", s.name), zap.Uint("game", gameID), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
}

// codeFor maps an operation error onto the status code of the result.
func codeFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrTimeout):
		return http.StatusConflict
	case errors.Is(err, upload.ErrIncomplete),
		errors.Is(err, worker.ErrIncompleteResponse),
		errors.Is(err, worker.ErrUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func fail[T any](err error) models.Response[T] {
	return models.Response[T]{HTTPCode: codeFor(err), Message: err.Error()}
}

func success[T any](code int, msg string, data T) models.Response[T] {
	return models.Response[T]{HTTPCode: code, Message: msg, Data: data}
}
