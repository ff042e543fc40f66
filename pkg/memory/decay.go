package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// DecayStore is the storage surface the decay job needs.
type DecayStore interface {
	ListCharacters(ctx context.Context) ([]string, error)
	GetCharacterMemories(ctx context.Context, characterID string) ([]CharacterMemory, error)

	// RaiseDecay sets the stored Decay to max(stored, decay) and leaves every
	// other field as stored. It reports whether the stored value changed.
	RaiseDecay(ctx context.Context, characterID, memoryID string, decay float64) (bool, error)
}

// DecayRecorder receives decay job metrics.
type DecayRecorder interface {
	RecordDecayRun(updated int, duration time.Duration)
}

type nopDecayRecorder struct{}

func (nopDecayRecorder) RecordDecayRun(int, time.Duration) {}

// jobLogger is the minimal logger interface used by DecayJob.
type jobLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopJobLogger struct{}

func (nopJobLogger) Debug(msg string, args ...any) {}
func (nopJobLogger) Info(msg string, args ...any)  {}
func (nopJobLogger) Warn(msg string, args ...any)  {}
func (nopJobLogger) Error(msg string, args ...any) {}

// DecayJob periodically advances memory decay.
//
// Decay follows the exponential forgetting curve R = e^(-t/S): t is hours since
// the memory was last recalled, S is the stability in hours, and each recall
// multiplies S by 1.5. The stored Decay is 100*(1-R), and it is only ever
// raised, so a recall slows further decay without erasing what has accrued.
type DecayJob struct {
	store            DecayStore
	defaultStability float64
	interval         time.Duration
	logger           jobLogger
	recorder         DecayRecorder
	now              func() time.Time

	mu           sync.Mutex
	cancel       context.CancelFunc
	done         chan struct{}
	totalUpdated int64
}

// DecayOption configures a DecayJob.
type DecayOption func(*DecayJob)

// WithDecayLogger sets the job logger.
func WithDecayLogger(l jobLogger) DecayOption {
	return func(d *DecayJob) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDecayRecorder sets the metrics recorder.
func WithDecayRecorder(r DecayRecorder) DecayOption {
	return func(d *DecayJob) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithDecayClock overrides the wall clock, for tests.
func WithDecayClock(now func() time.Time) DecayOption {
	return func(d *DecayJob) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDecayJob creates a decay job. defaultStability is in hours.
func NewDecayJob(store DecayStore, defaultStability float64, interval time.Duration, opts ...DecayOption) (*DecayJob, error) {
	if store == nil {
		return nil, fmt.Errorf("memory: decay store cannot be nil")
	}
	if defaultStability <= 0 {
		return nil, fmt.Errorf("memory: decay stability must be > 0")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("memory: decay interval must be > 0")
	}
	d := &DecayJob{
		store:            store,
		defaultStability: defaultStability,
		interval:         interval,
		logger:           nopJobLogger{},
		recorder:         nopDecayRecorder{},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Stability returns the stability in hours for a memory recalled recallCount times.
func (d *DecayJob) Stability(recallCount int) float64 {
	return d.defaultStability * math.Pow(1.5, float64(recallCount))
}

// Apply raises m.Decay to its value at now and reports whether it changed.
func (d *DecayJob) Apply(m *CharacterMemory, now time.Time) bool {
	elapsed := now.Sub(m.LastRecalled).Hours()
	if elapsed <= 0 {
		return false
	}
	target := MaxScore * (1 - math.Exp(-elapsed/d.Stability(m.RecallCount)))
	if target > MaxScore {
		target = MaxScore
	}
	if target <= m.Decay {
		return false
	}
	m.Decay = target
	return true
}

// RunOnce applies decay to every stored memory and returns how many changed.
func (d *DecayJob) RunOnce(ctx context.Context) (int, error) {
	start := d.now()
	characters, err := d.store.ListCharacters(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory: list characters: %w", err)
	}

	updated := 0
	for _, characterID := range characters {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		memories, err := d.store.GetCharacterMemories(ctx, characterID)
		if err != nil {
			d.logger.Warn("failed to load memories for decay", "character_id", characterID, "error", err)
			continue
		}
		for i := range memories {
			if !d.Apply(&memories[i], start) {
				continue
			}
			raised, err := d.store.RaiseDecay(ctx, characterID, memories[i].ID, memories[i].Decay)
			if err != nil {
				d.logger.Warn("failed to raise memory decay", "memory_id", memories[i].ID, "error", err)
				continue
			}
			if raised {
				updated++
			}
		}
	}

	d.mu.Lock()
	d.totalUpdated += int64(updated)
	d.mu.Unlock()
	d.recorder.RecordDecayRun(updated, d.now().Sub(start))
	d.logger.Debug("memory decay cycle complete", "characters", len(characters), "updated", updated)
	return updated, nil
}

// Start runs the job on its interval until ctx is cancelled or Stop is called.
func (d *DecayJob) Start(parent context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("memory: decay job already started")
	}

	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
					d.logger.Error("memory decay cycle failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}(d.done)

	d.logger.Info("memory decay job started", "interval", d.interval, "default_stability_hours", d.defaultStability)
	return nil
}

// Stop stops the loop and waits for it to exit.
func (d *DecayJob) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Stats returns the number of memories updated since creation.
func (d *DecayJob) Stats() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalUpdated
}
