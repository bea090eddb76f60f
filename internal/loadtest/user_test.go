package loadtest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
)

func newTestRand() *rand.Rand { return rand.New(rand.NewSource(1)) }

func noop(context.Context) error { return nil }

func TestTaskPicker_Weights(t *testing.T) {
	picker, err := newTaskPicker([]Task{
		{Name: "browse", Weight: 5, Run: noop},
		{Name: "upload", Weight: 1, Run: noop},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rnd := newTestRand()
	counts := map[string]int{}
	const n = 60000
	for i := 0; i < n; i++ {
		counts[picker.pick(rnd).Name]++
	}

	ratio := float64(counts["browse"]) / float64(counts["upload"])
	if ratio < 4.5 || ratio > 5.5 {
		t.Errorf("expected browse:upload near 5:1, got %.2f (%v)", ratio, counts)
	}
}

func TestTaskPicker_SkipsUnrunnable(t *testing.T) {
	picker, err := newTaskPicker([]Task{
		{Name: "off", Weight: 0, Run: noop},
		{Name: "nil", Weight: 3},
		{Name: "on", Weight: 1, Run: noop},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rnd := newTestRand()
	for i := 0; i < 50; i++ {
		if got := picker.pick(rnd).Name; got != "on" {
			t.Fatalf("expected only 'on' to be picked, got %q", got)
		}
	}
}

func TestTaskPicker_Errors(t *testing.T) {
	if _, err := newTaskPicker(nil); !errors.Is(err, ErrNoTasks) {
		t.Errorf("expected ErrNoTasks, got %v", err)
	}
	if _, err := newTaskPicker([]Task{{Name: "bad", Weight: -1, Run: noop}}); err == nil {
		t.Error("expected error for negative weight")
	}
}

func TestReported(t *testing.T) {
	if Reported(nil) != nil {
		t.Error("expected nil for nil error")
	}
	cause := errors.New("status 500")
	err := Reported(cause)
	if !errors.Is(err, ErrReported) || !errors.Is(err, cause) {
		t.Errorf("expected both sentinel and cause in %v", err)
	}
}
