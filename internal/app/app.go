// Package app builds the tracker's object graph once at startup and hands it
// to the web server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/config"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/database/mariadb"
	"github.com/kozaktomas/attendance-tracker/internal/database/postgres"
	"github.com/kozaktomas/attendance-tracker/internal/embedding"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
	"github.com/kozaktomas/attendance-tracker/internal/roster"
	"github.com/kozaktomas/attendance-tracker/internal/session"
	"github.com/kozaktomas/attendance-tracker/internal/worker"
)

// Stores are the persistence dependencies of the tracker.
type Stores struct {
	Students   database.StudentWriter
	Sessions   database.SessionRepository
	Attendance database.AttendanceRepository
	Registrar  database.RegistrarReader // nil when no registrar is configured
}

// App owns every long-lived component. It replaces package-level singletons.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Stores Stores

	Settings    *facematch.Settings
	Recognizer  facematch.Recognizer
	Roster      *roster.Roster
	Index       *database.StudentIndex
	Trainer     *roster.Trainer
	Lifecycle   *session.Lifecycle
	Coordinator *attendance.Coordinator
	Worker      *worker.RecognitionWorker

	observations chan attendance.Observation
	closers      []func() error
}

// Open connects to PostgreSQL (and the registrar when configured), then
// builds the app on top of the PostgreSQL repositories.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)

	pool, applied, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if len(applied) > 0 {
		log.Info("applied migrations", "files", applied)
	}

	stores := Stores{
		Students:   postgres.NewStudentRepository(pool),
		Sessions:   postgres.NewSessionRepository(pool),
		Attendance: postgres.NewAttendanceRepository(pool),
	}
	closers := []func() error{pool.Close}

	if cfg.Registrar.DatabaseURL != "" {
		reg, err := mariadb.NewPool(ctx, cfg.Registrar.DatabaseURL)
		if err != nil {
			log.Warn("registrar unavailable", "error", err)
		} else {
			stores.Registrar = reg
			closers = append(closers, reg.Close)
		}
	}

	var backend facematch.EmbeddingBackend
	if cfg.Recognition.Mode != facematch.ModeHistogram {
		backend = embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim, cfg.Embedding.Timeout, log)
	}

	a, err := New(ctx, cfg, stores, backend, log)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	return a, nil
}

// New builds the app from already opened stores. backend may be nil, in which
// case only the histogram recognizer is available.
func New(ctx context.Context, cfg *config.Config, stores Stores, backend facematch.EmbeddingBackend, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{
		Config: cfg,
		Log:    log,
		Stores: stores,
	}

	a.Settings = facematch.NewSettings(SettingsOptions(cfg), log)
	rec, err := facematch.New(ctx, cfg.Recognition.Mode, a.Settings, backend, log)
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	a.Recognizer = rec
	log.Info("recognizer ready", "kind", rec.Kind(), "threshold", rec.ConfidenceThreshold())

	a.Roster = roster.New(stores.Students, log)
	stored, err := a.Roster.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	a.Index = database.NewStudentIndex()
	a.Trainer = roster.NewTrainer(a.Roster, stores.Students, rec, a.Index, roster.TrainerOptions{
		DuplicateHashDistance:    cfg.Recognition.Enrollment.DuplicateHashDistance,
		DuplicateStudentDistance: cfg.Recognition.Enrollment.DuplicateStudentDistance,
		IndexPath:                cfg.Database.HNSWIndexPath,
	}, log)
	a.Trainer.LoadIndex(stored)

	a.Coordinator = attendance.NewCoordinator(stores.Attendance, stores.Sessions, stores.Students, log)
	a.Lifecycle = session.NewLifecycle(stores.Sessions, session.DefaultChain(stores.Sessions, log), a.Coordinator, log)

	queue := cfg.Worker.ResultQueue
	if queue <= 0 {
		queue = 1
	}
	a.observations = make(chan attendance.Observation, queue)
	a.Worker = worker.New(worker.NewMailbox(), rec, a.Roster, a.observations, cfg.Worker.TickTimeout, log)

	return a, nil
}

// SettingsOptions maps the recognition config onto recognizer options.
func SettingsOptions(cfg *config.Config) facematch.Options {
	emb := cfg.Recognition.Embedding
	return facematch.Options{
		Threshold: cfg.Recognition.Threshold,
		Mapping: facematch.SimilarityMapping{
			Floor:           emb.SimilarityFloor,
			UpperKnee:       emb.UpperKnee,
			UpperConfidence: emb.UpperConfidence,
			LowerKnee:       emb.LowerKnee,
			LowerConfidence: emb.LowerConfidence,
		},
		Dim:       emb.Dim,
		InputSize: emb.InputSize,
	}
}

// Run starts the session scheduler, the recognition worker and the
// coordinator, and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Lifecycle.Start(ctx, a.Config.Scheduler.TickInterval, a.Config.Scheduler.Location()); err != nil {
		return err
	}
	defer a.Lifecycle.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Coordinator.Run(gctx, a.observations)
		return nil
	})
	return g.Wait()
}

// Close releases database connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
