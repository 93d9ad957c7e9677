// Package logger drives the polling scheduler: a ticker dispatches a
// read task per due connection, joins them on a per-tick barrier,
// stores the collected rows in the sink and finally fires the writer
// tasks of the tick.
package logger

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ilguido/jidl/pkg/connection"
	"github.com/ilguido/jidl/pkg/errors"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/sink"
	"github.com/ilguido/jidl/pkg/variable"
)

// stopGrace is how long Stop waits for in-flight tasks before it
// returns anyway.
const stopGrace = 3 * time.Second

// Logger owns one sink and the connections logged into it. At most one
// scheduler run is active at a time.
type Logger struct {
	name       string
	workingDir string
	snk        sink.Sink
	conns      []connection.Connection
	log        *log.Logger

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	fatalOnce    *sync.Once
	fatalHandler func(error)
}

// New assembles a logger. The working directory must exist; connection
// names must be unique.
func New(name, workingDir string, snk sink.Sink, conns []connection.Connection, lg *log.Logger) (*Logger, error) {
	if !variable.NameRe.MatchString(name) {
		return nil, errors.Newf(errors.ErrCodeBadArgument,
			"illegal logger name %q", name).Err()
	}
	if info, err := os.Stat(workingDir); err != nil || !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeBadArgument,
			"working directory %q does not exist", workingDir).Err()
	}
	seen := make(map[string]bool, len(conns))
	for _, c := range conns {
		if seen[c.Name()] {
			return nil, errors.AlreadyExists("connection", c.Name()).Err()
		}
		seen[c.Name()] = true
	}
	if lg == nil {
		lg = log.Default()
	}
	return &Logger{
		name:       name,
		workingDir: workingDir,
		snk:        snk,
		conns:      conns,
		log:        lg,
	}, nil
}

func (l *Logger) Name() string       { return l.name }
func (l *Logger) WorkingDir() string { return l.workingDir }
func (l *Logger) Sink() sink.Sink    { return l.snk }

// Connections returns the connection list in insertion order.
func (l *Logger) Connections() []connection.Connection { return l.conns }

// Connection returns the named connection, nil if absent.
func (l *Logger) Connection(name string) connection.Connection {
	for _, c := range l.conns {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Running reports whether the ticker is armed.
func (l *Logger) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// tickStep picks the run's resolution: deciseconds when any connection
// samples faster than one second, otherwise whole seconds. The counter
// always advances in deciseconds.
func (l *Logger) tickStep() (time.Duration, int) {
	for _, c := range l.conns {
		if c.SampleTicks() < 10 {
			return 100 * time.Millisecond, 1
		}
	}
	return time.Second, 10
}

// Start arms the ticker and returns immediately. The optional fatal
// handler is invoked once if the sink becomes unavailable mid-run.
// Starting an already running logger is a no-op.
func (l *Logger) Start(fatalHandler func(error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	// A sink that cannot take the start marker cannot take rows either.
	if err := l.snk.Log(context.Background(), "started data logging", false); err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkUnavailable,
			"logger not ready").Fatal().Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.fatalOnce = new(sync.Once)
	l.fatalHandler = fatalHandler
	l.running = true

	step, inc := l.tickStep()
	go l.run(ctx, step, inc)

	l.log.Scheduler().Info("scheduler started",
		"logger", l.name, "step", step.String(), "connections", len(l.conns))
	return nil
}

// Stop cancels ticking, waits up to the grace period for in-flight
// tasks, then disconnects every connection. Idempotent.
func (l *Logger) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopGrace):
		l.log.Scheduler().Warn("in-flight tasks did not finish in time",
			"grace", stopGrace.String())
	}

	for _, c := range l.conns {
		if c.Connected() {
			if err := c.Disconnect(); err != nil {
				l.log.Device().Warn("disconnect failed",
					"connection", c.Name(), "error", err)
			}
		}
	}

	l.snk.Log(context.Background(), "stopped data logging", false)
	l.log.Scheduler().Info("scheduler stopped", "logger", l.name)
	return nil
}

// run is the single dispatch loop. Ticks are dispatched from this one
// goroutine, so two ticks can never interleave; a slow tick coalesces
// the ticker's missed beats.
func (l *Logger) run(ctx context.Context, step time.Duration, inc int) {
	defer close(l.done)

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	counter := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counter += inc
			l.tick(ctx, counter)
		}
	}
}

// tick dispatches the due read tasks, joins them, then fires the due
// writer tasks without waiting for them.
func (l *Logger) tick(ctx context.Context, counter int) {
	ticksTotal.Inc()

	var due []connection.Connection
	var wg sync.WaitGroup
	for _, c := range l.conns {
		if counter%c.SampleTicks() != 0 || len(c.Readers()) == 0 {
			continue
		}
		due = append(due, c)
		wg.Add(1)
		go func(c connection.Connection) {
			defer wg.Done()
			l.poll(ctx, c)
		}(c)
	}
	wg.Wait()

	for _, c := range due {
		w, ok := c.(connection.Writeable)
		if !ok || len(w.Writers()) == 0 || !w.Connected() {
			continue
		}
		go l.write(ctx, w)
	}
}

// poll advances one connection through its state machine and, when
// connected, runs a read pass and stores the row.
func (l *Logger) poll(ctx context.Context, c connection.Connection) {
	if !c.Initialized() {
		if err := c.Initialize(ctx); err != nil {
			l.log.Device().Warn("initialization failed",
				"connection", c.Name(), "error", err)
			return
		}
		l.diag(ctx, "connected: "+c.Name(), false)
		return
	}
	if !c.Connected() {
		if err := c.Connect(ctx); err != nil {
			l.log.Device().Debug("reconnect failed",
				"connection", c.Name(), "error", err)
			return
		}
		reconnects.WithLabelValues(c.Name()).Inc()
		l.diag(ctx, "connected: "+c.Name(), false)
		return
	}

	start := time.Now()
	err := c.Read(ctx)
	readDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		readErrors.WithLabelValues(c.Name()).Inc()
		c.Disconnect()
		l.diag(ctx, "disconnected: "+c.Name(), true)
		l.log.Device().Warn("read pass failed",
			"connection", c.Name(), "error", err)
		return
	}
	readsTotal.WithLabelValues(c.Name()).Inc()

	row := c.Data()
	row[sink.TimestampColumn] = sink.Timestamp(time.Now())
	if err := l.snk.AddEntry(ctx, c.Name(), row); err != nil {
		if errors.IsCode(err, errors.ErrCodeSinkUnavailable) {
			l.fatal(err)
			return
		}
		l.log.Sink().Error("row insert failed", err,
			"connection", c.Name())
	}
}

// write runs one writer pass; an I/O failure quarantines the
// connection like a failed read would.
func (l *Logger) write(ctx context.Context, w connection.Writeable) {
	if err := w.Write(ctx); err != nil {
		w.Disconnect()
		l.diag(ctx, "disconnected: "+w.Name(), true)
		l.log.Device().Warn("write pass failed",
			"connection", w.Name(), "error", err)
	}
}

// diag stores a diagnostics row; a fatal sink failure stops the run.
func (l *Logger) diag(ctx context.Context, message string, isError bool) {
	if err := l.snk.Log(ctx, message, isError); err != nil {
		if errors.IsCode(err, errors.ErrCodeSinkUnavailable) {
			l.fatal(err)
			return
		}
		l.log.Sink().Warn("diagnostics write failed", "error", err)
	}
}

// fatal surfaces the cause through the handler once and stops the
// scheduler from outside the dispatch loop.
func (l *Logger) fatal(err error) {
	l.mu.Lock()
	once := l.fatalOnce
	handler := l.fatalHandler
	l.mu.Unlock()
	if once == nil {
		return
	}
	once.Do(func() {
		l.log.Scheduler().Fatal("sink unavailable, stopping data logging", err)
		if handler != nil {
			handler(err)
		}
		go l.Stop()
	})
}
