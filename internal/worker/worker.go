package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
	"github.com/kozaktomas/attendance-tracker/internal/logger"
)

// RosterSource provides the students to match against.
type RosterSource interface {
	Snapshot() []*facematch.Student
}

// Stats are lifetime counters of a worker.
type Stats struct {
	Processed uint64       `json:"processed"`
	Posted    uint64       `json:"posted"`
	TimedOut  uint64       `json:"timed_out"`
	Mailbox   MailboxStats `json:"mailbox"`
}

// RecognitionWorker recognizes one frame per tick and posts candidates to
// the coordinator's channel. It never touches attendance records itself.
type RecognitionWorker struct {
	mailbox     *Mailbox
	recognizer  facematch.Recognizer
	roster      RosterSource
	out         chan<- attendance.Observation
	tickTimeout time.Duration
	log         *logger.Logger

	processed atomic.Uint64
	posted    atomic.Uint64
	timedOut  atomic.Uint64
}

// New creates a worker. tickTimeout bounds a single recognition; zero disables it.
func New(mailbox *Mailbox, recognizer facematch.Recognizer, roster RosterSource, out chan<- attendance.Observation, tickTimeout time.Duration, log *logger.Logger) *RecognitionWorker {
	return &RecognitionWorker{
		mailbox:     mailbox,
		recognizer:  recognizer,
		roster:      roster,
		out:         out,
		tickTimeout: tickTimeout,
		log:         logger.OrNop(log).With("component", "recognition-worker"),
	}
}

func (w *RecognitionWorker) Mailbox() *Mailbox { return w.mailbox }

// Run processes frames until ctx is done. It closes the mailbox on exit.
func (w *RecognitionWorker) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, w.mailbox.Close)
	defer stop()
	defer w.mailbox.Close()

	w.log.Info("recognition worker started", "recognizer", w.recognizer.Kind(), "tick_timeout", w.tickTimeout)
	for {
		frame, ok := w.mailbox.Next()
		if !ok {
			w.log.Info("recognition worker stopped", "processed", w.processed.Load(), "posted", w.posted.Load())
			return
		}
		obs, ok := w.tick(ctx, frame)
		if !ok {
			continue
		}
		select {
		case w.out <- obs:
			w.posted.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

// tick recognizes one frame. ok is false when there is nothing to post: no
// candidate, or the tick ran out of time and is skipped.
func (w *RecognitionWorker) tick(ctx context.Context, frame *Frame) (attendance.Observation, bool) {
	tctx := ctx
	if w.tickTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, w.tickTimeout)
		defer cancel()
	}

	res := w.recognizer.Recognize(tctx, frame.Data, w.roster.Snapshot())
	w.processed.Add(1)
	if err := tctx.Err(); err != nil {
		w.timedOut.Add(1)
		w.log.Warn("recognition tick skipped", "seq", frame.Seq, "error", err)
		return attendance.Observation{}, false
	}
	if res.Student == nil {
		return attendance.Observation{}, false
	}
	w.log.Debug("face recognized", "seq", frame.Seq, "student", res.Student.ID, "confidence", res.Confidence, "match", res.Match)
	return attendance.Observation{Result: res, CapturedAt: frame.CapturedAt}, true
}

func (w *RecognitionWorker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Posted:    w.posted.Load(),
		TimedOut:  w.timedOut.Load(),
		Mailbox:   w.mailbox.Stats(),
	}
}
