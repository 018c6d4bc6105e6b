package census

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tilecensus.ai/internal/tiles"
)

var (
	// ErrBusy is returned when a run is triggered while another is in flight.
	ErrBusy = errors.New("census run already in progress")

	// ErrNoReports is returned by report stores that have nothing recorded.
	ErrNoReports = errors.New("no census runs recorded")
)

// Report is the outcome of one census run.
type Report struct {
	ID        string        `json:"id"`
	WorldID   string        `json:"world_id"`
	Tick      uint64        `json:"tick"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Tiles     int           `json:"tiles"`
	Entries   []Entry       `json:"entries"`

	// Path is the exported file, filled in by the exporting sink.
	Path string `json:"path,omitempty"`
}

// Total is the sum of all entry counts. For a successful run it equals Tiles.
func (r *Report) Total() int {
	n := 0
	for _, e := range r.Entries {
		n += e.Count
	}
	return n
}

func (r *Report) Distinct() int { return len(r.Entries) }

// Sink consumes a finished report. Sinks run in registration order and may
// annotate the report (the exporter sets Path).
type Sink interface {
	Consume(ctx context.Context, r *Report) error
}

type SinkFunc func(ctx context.Context, r *Report) error

func (f SinkFunc) Consume(ctx context.Context, r *Report) error { return f(ctx, r) }

type Runner struct {
	src        Source
	sinks      []Sink
	classifier tiles.Classifier
	log        *log.Logger
	now        func() time.Time

	busy atomic.Bool
}

type RunnerOption func(*Runner)

func WithClassifier(c tiles.Classifier) RunnerOption {
	return func(r *Runner) { r.classifier = c }
}

func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func WithSinks(sinks ...Sink) RunnerOption {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

func NewRunner(src Source, logger *log.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		src: src,
		log: logger,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Busy reports whether a run is in flight.
func (r *Runner) Busy() bool { return r.busy.Load() }

// Run performs one load, aggregate and sink cycle. A concurrent call returns
// ErrBusy without waiting. Nothing reaches the sinks if aggregation fails.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.busy.Store(false)

	start := r.now()
	w, err := r.src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tiles: %w", err)
	}
	r.logf("generating census: world=%s tick=%d tiles=%d", w.ID, w.Tick, len(w.Tiles))

	entries, err := AggregateWith(r.classifier, w.Tiles)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	rep := &Report{
		ID:        uuid.NewString(),
		WorldID:   w.ID,
		Tick:      w.Tick,
		StartedAt: start.UTC(),
		Tiles:     len(w.Tiles),
		Entries:   entries,
	}
	rep.Duration = r.now().Sub(start)

	for _, s := range r.sinks {
		if err := s.Consume(ctx, rep); err != nil {
			return nil, err
		}
	}
	r.logf("census done: id=%s distinct=%d path=%s", rep.ID, rep.Distinct(), rep.Path)
	return rep, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
