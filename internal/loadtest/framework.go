package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config defines load test parameters.
type Config struct {
	Name      string
	Users     int           // simulated users to start
	HatchRate float64       // users started per second, <= 0 starts all at once
	Duration  time.Duration // 0 runs until ctx is cancelled or every user stops
	MinWait   time.Duration // pause between tasks of one user
	MaxWait   time.Duration
	TaskLimit int   // tasks per user, 0 = unlimited
	Seed      int64 // 0 seeds from the clock

	StopTimeout time.Duration // budget for each OnStop after cancellation
	Observers   []Observer
	Recorders   []Recorder // receive every sample besides the built-in stats
	Logger      *zap.Logger
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:        name,
		Users:       10,
		HatchRate:   1,
		Duration:    5 * time.Minute,
		MinWait:     5 * time.Second,
		MaxWait:     9 * time.Second,
		StopTimeout: 30 * time.Second,
	}
}

// Framework orchestrates load test execution.
type Framework struct {
	config  *Config
	factory UserFactory
	stats   *Stats
	logger  *zap.Logger

	activeUsers atomic.Int64

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a new load testing framework.
func New(config *Config, factory UserFactory) *Framework {
	if config == nil {
		config = DefaultConfig("default")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 30 * time.Second
	}

	return &Framework{
		config:  config,
		factory: factory,
		stats:   NewStats(),
		logger:  logger,
	}
}

// Record implements Recorder by fanning samples out to the built-in
// stats and every configured recorder.
func (f *Framework) Record(s Sample) {
	f.stats.Record(s)
	for _, r := range f.config.Recorders {
		r.Record(s)
	}
}

// Stats exposes the live aggregate.
func (f *Framework) Stats() *Stats { return f.stats }

// Run starts the users, waits for the test to end and returns a summary.
func (f *Framework) Run(ctx context.Context) (*Summary, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil, fmt.Errorf("load test already running")
	}
	if f.factory == nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("load test has no user factory")
	}
	f.running = true
	f.startTime = time.Now()
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	testCtx := ctx
	if f.config.Duration > 0 {
		var cancel context.CancelFunc
		testCtx, cancel = context.WithTimeout(ctx, f.config.Duration)
		defer cancel()
	}

	limit := rate.Inf
	if f.config.HatchRate > 0 {
		limit = rate.Limit(f.config.HatchRate)
	}
	limiter := rate.NewLimiter(limit, 1)

	seed := f.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	f.notify(EventStartHatching)

	var g errgroup.Group
	started := 0
	for i := 1; i <= f.config.Users; i++ {
		if err := limiter.Wait(testCtx); err != nil {
			break
		}
		id := i
		rnd := rand.New(rand.NewSource(seed + int64(id)))
		g.Go(func() error {
			f.runUser(testCtx, id, rnd)
			return nil
		})
		started++
	}
	if started == f.config.Users {
		f.notify(EventHatchComplete)
	}

	_ = g.Wait()
	f.notify(EventQuitting)

	return f.stats.Summarize(f.config.Name, f.startTime, time.Now(), started), nil
}

// runUser drives one simulated user through its lifecycle.
func (f *Framework) runUser(ctx context.Context, id int, rnd *rand.Rand) {
	logger := f.logger.With(zap.Int("user_id", id))
	env := UserEnv{ID: id, Recorder: f, Logger: logger, Rand: rnd}

	user, err := f.factory(env)
	if err != nil {
		f.Record(Sample{Type: SampleSetup, Name: "create_user", StartTime: time.Now(), Err: err, UserID: id})
		logger.Error("failed to create simulated user", zap.Error(err))
		return
	}

	f.activeUsers.Add(1)
	defer f.activeUsers.Add(-1)

	start := time.Now()
	if err := user.OnStart(ctx); err != nil {
		f.Record(Sample{Type: SampleSetup, Name: "on_start", StartTime: start, Duration: time.Since(start), Err: err, UserID: id})
		logger.Error("simulated user setup failed", zap.Error(err))
		return
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.config.StopTimeout)
		defer cancel()
		stopStart := time.Now()
		if err := user.OnStop(stopCtx); err != nil {
			f.Record(Sample{Type: SampleSetup, Name: "on_stop", StartTime: stopStart, Duration: time.Since(stopStart), Err: err, UserID: id})
			logger.Warn("simulated user teardown failed", zap.Error(err))
		}
	}()

	picker, err := newTaskPicker(user.Tasks())
	if err != nil {
		f.Record(Sample{Type: SampleSetup, Name: "tasks", StartTime: time.Now(), Err: err, UserID: id})
		logger.Error("simulated user has no runnable tasks", zap.Error(err))
		return
	}

	for n := 0; f.config.TaskLimit == 0 || n < f.config.TaskLimit; n++ {
		if ctx.Err() != nil {
			return
		}
		task := picker.pick(rnd)
		f.runTask(ctx, id, task, logger)

		if f.config.TaskLimit > 0 && n == f.config.TaskLimit-1 {
			return
		}
		if !sleepCtx(ctx, f.waitTime(rnd)) {
			return
		}
	}
}

// runTask executes one task, recording unexpected errors and panics as
// failed task samples.
func (f *Framework) runTask(ctx context.Context, id int, task Task, logger *zap.Logger) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task %s panicked: %v", task.Name, r)
			f.Record(Sample{Type: SampleTask, Name: task.Name, StartTime: start, Duration: time.Since(start), Err: err, UserID: id})
			logger.Error("task panicked", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()

	err := task.Run(ctx)
	switch {
	case err == nil:
		return
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return
	case errors.Is(err, ErrReported):
		logger.Debug("task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	f.Record(Sample{Type: SampleTask, Name: task.Name, StartTime: start, Duration: time.Since(start), Err: err, UserID: id})
	logger.Warn("task failed", zap.String("task", task.Name), zap.Error(err))
}

func (f *Framework) waitTime(rnd *rand.Rand) time.Duration {
	min, max := f.config.MinWait, f.config.MaxWait
	if max <= min {
		return min
	}
	return min + time.Duration(rnd.Int63n(int64(max-min)))
}

func (f *Framework) notify(e Event) {
	info := EventInfo{Time: time.Now(), Test: f.config.Name, Users: f.config.Users}
	for _, o := range f.config.Observers {
		o.Notify(e, info)
	}
}

// IsRunning returns whether a test is currently executing.
func (f *Framework) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

// ActiveUsers returns the number of users currently running.
func (f *Framework) ActiveUsers() int64 {
	return f.activeUsers.Load()
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
