package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

// ErrNoTasks is returned when a user offers nothing runnable.
var ErrNoTasks = errors.New("loadtest: user has no tasks with positive weight")

// ErrReported marks a task error whose failure was already recorded as a
// sample. The harness does not record it a second time.
var ErrReported = errors.New("loadtest: failure already reported")

// Reported wraps err with ErrReported.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrReported, err)
}

// Task is one weighted behaviour of a simulated user.
type Task struct {
	Name   string
	Weight int
	Run    func(ctx context.Context) error
}

// User is one simulated user. The harness calls OnStart once, then runs
// weighted tasks until the test ends, then calls OnStop. A user is only
// ever driven from a single goroutine.
type User interface {
	OnStart(ctx context.Context) error
	Tasks() []Task
	OnStop(ctx context.Context) error
}

// UserEnv is what the harness hands to a new user.
type UserEnv struct {
	ID       int
	Recorder Recorder
	Logger   *zap.Logger
	Rand     *rand.Rand
}

// UserFactory builds the user for one simulated session.
type UserFactory func(env UserEnv) (User, error)

// taskPicker selects tasks proportionally to their weight using a
// cumulative weight table.
type taskPicker struct {
	tasks      []Task
	cumulative []int
	total      int
}

func newTaskPicker(tasks []Task) (*taskPicker, error) {
	p := &taskPicker{}
	for _, t := range tasks {
		if t.Weight < 0 {
			return nil, fmt.Errorf("loadtest: task %q has negative weight %d", t.Name, t.Weight)
		}
		if t.Weight == 0 || t.Run == nil {
			continue
		}
		p.total += t.Weight
		p.tasks = append(p.tasks, t)
		p.cumulative = append(p.cumulative, p.total)
	}
	if p.total == 0 {
		return nil, ErrNoTasks
	}
	return p, nil
}

func (p *taskPicker) pick(rnd *rand.Rand) Task {
	n := rnd.Intn(p.total)
	for i, c := range p.cumulative {
		if n < c {
			return p.tasks[i]
		}
	}
	return p.tasks[len(p.tasks)-1]
}
