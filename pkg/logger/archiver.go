package logger

import (
	"context"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/sink"
)

// archiverStopGrace is how long Stop waits for a running archive pass.
const archiverStopGrace = 5 * time.Second

// hoursPerWeek is the base unit of the archiving period.
const hoursPerWeek = 168

// Archiver snapshots the sink and prunes old rows on a calendar
// cadence: on the chosen day of week, at the first hour of the day,
// every interval weeks. Monthly schedules tick weekly and only act in
// the first week of the month.
type Archiver struct {
	snk sink.Sink
	log *log.Logger

	// now is swapped out by tests.
	now func() time.Time

	mu      sync.Mutex
	monthly bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewArchiver wraps a sink that supports snapshots.
func NewArchiver(snk sink.Sink, lg *log.Logger) (*Archiver, error) {
	if !snk.IsArchiver() {
		return nil, errors.Newf(errors.ErrCodeArchiveFailed,
			"%s sink does not support archiving", snk.Dialect()).Err()
	}
	if lg == nil {
		lg = log.Default()
	}
	return &Archiver{snk: snk, log: lg, now: time.Now}, nil
}

// IsSet reports whether a schedule is armed.
func (a *Archiver) IsSet() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// Set arms the schedule, overwriting any previous one. dayOfWeek is
// ISO, 1 for Monday through 7 for Sunday. interval counts weeks, or
// months when monthly is set; at most one year either way.
func (a *Archiver) Set(dayOfWeek, interval int, monthly bool) error {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		return errors.Newf(errors.ErrCodeBadArgument,
			"day of week %d out of range", dayOfWeek).Err()
	}
	maxRange := 52
	if monthly {
		maxRange = 12
	}
	if interval < 1 || interval > maxRange {
		return errors.Newf(errors.ErrCodeBadArgument,
			"archiving interval %d out of range [1, %d]", interval, maxRange).Err()
	}

	a.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.monthly = monthly

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	delay := firstDelay(a.now(), dayOfWeek, monthly)
	period := time.Duration(interval) * hoursPerWeek * time.Hour
	if monthly {
		// Tick every week and gate on the day of the month.
		period = hoursPerWeek * time.Hour
	}
	go a.run(ctx, a.done, delay, period)

	a.log.Sink().Info("archiving service set",
		"dayOfWeek", dayOfWeek, "interval", interval, "monthly", monthly,
		"firstRun", delay.String())
	return nil
}

// Stop disarms the schedule, waiting out a running archive pass up to
// the grace period. Idempotent.
func (a *Archiver) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	select {
	case <-done:
	case <-time.After(archiverStopGrace):
		a.log.Sink().Warn("archive pass did not finish in time",
			"grace", archiverStopGrace.String())
	}
}

func (a *Archiver) run(ctx context.Context, done chan struct{}, delay, period time.Duration) {
	defer close(done)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			a.archive(ctx)
			timer.Reset(period)
		}
	}
}

// archive runs one pass. Monthly schedules no-op outside the first
// week of the month.
func (a *Archiver) archive(ctx context.Context) {
	days, due := retentionDays(a.now(), a.monthly)
	if !due {
		return
	}
	if err := a.snk.Archive(ctx, days); err != nil {
		a.log.Sink().Error("archiving failed", err)
	}
}

// retentionDays gives the pruning horizon for a pass at the given
// moment, and whether the pass should run at all.
func retentionDays(now time.Time, monthly bool) (int, bool) {
	if !monthly {
		return 7, true
	}
	if now.Day() > 7 {
		return 0, false
	}
	return 30 + now.Day(), true
}

// firstDelay computes the wait until the next occurrence of dayOfWeek
// at hour 0, shifted into the first week of the next month for monthly
// schedules.
func firstDelay(now time.Time, dayOfWeek int, monthly bool) time.Duration {
	today := int(now.Weekday())
	if today == 0 {
		today = 7 // ISO Sunday
	}

	weeks := 0
	if dayOfWeek <= today {
		weeks++
	}
	if monthly {
		weeks += weeksToNextMonth(now) - 1
	}
	days := 7*weeks + dayOfWeek - today

	return time.Duration(24*days-now.Hour()) * time.Hour
}

// weeksToNextMonth counts the week boundaries between now and the
// first day of the next month.
func weeksToNextMonth(now time.Time) int {
	_, thisWeek := now.ISOWeek()

	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).
		AddDate(0, 1, 0)
	firstYear, firstWeek := first.ISOWeek()

	nowYear, _ := now.ISOWeek()
	if firstYear > nowYear {
		// December 28 always falls in the last ISO week of its year.
		_, weeksInYear := time.Date(now.Year(), 12, 28, 0, 0, 0, 0,
			now.Location()).ISOWeek()
		firstWeek += weeksInYear
	}
	return firstWeek - thisWeek
}
