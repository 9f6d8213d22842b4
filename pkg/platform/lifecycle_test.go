package platform

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLifecycle_StartAndStop(t *testing.T) {
	lc := NewLifecycle()

	var started, stopped bool
	lc.Append("component",
		func(_ context.Context) error { started = true; return nil },
		func(_ context.Context) error { stopped = true; return nil },
	)

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !started {
		t.Error("start callback not called")
	}
	if !lc.IsStarted() {
		t.Error("IsStarted() = false after Start()")
	}

	if err := lc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !stopped {
		t.Error("stop callback not called")
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after Stop()")
	}
}

func TestLifecycle_StartAlreadyStarted(t *testing.T) {
	lc := NewLifecycle()
	_ = lc.Start(context.Background())

	if err := lc.Start(context.Background()); err == nil {
		t.Error("Start() expected error when already started")
	}
}

func TestLifecycle_StopNotStarted(t *testing.T) {
	lc := NewLifecycle()
	called := false
	lc.OnStop("x", func(_ context.Context) error { called = true; return nil })

	if err := lc.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if called {
		t.Error("stop callback should not run before Start()")
	}
}

func TestLifecycle_StartRollbackOnError(t *testing.T) {
	lc := NewLifecycle()

	var order []string
	lc.Append("first",
		func(_ context.Context) error { return nil },
		func(_ context.Context) error { order = append(order, "stop first"); return nil },
	)
	lc.OnStop("closer", func(_ context.Context) error { order = append(order, "stop closer"); return nil })
	lc.Append("failing",
		func(_ context.Context) error { return errors.New("boom") },
		func(_ context.Context) error { order = append(order, "stop failing"); return nil },
	)

	err := lc.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if !strings.Contains(err.Error(), "starting failing") {
		t.Errorf("error = %v, want component name", err)
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after failed Start()")
	}

	want := []string{"stop closer", "stop first"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("rollback order = %v, want %v", order, want)
	}
}

func TestLifecycle_RollbackWithStopError(t *testing.T) {
	lc := NewLifecycle()
	lc.Append("first", nil, func(_ context.Context) error { return errors.New("stop failed") })
	lc.OnStart("failing", func(_ context.Context) error { return errors.New("boom") })

	if err := lc.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error")
	}
}

func TestLifecycle_StopInReverseOrder(t *testing.T) {
	lc := NewLifecycle()

	var order []int
	for i := range 3 {
		lc.OnStop("c", func(_ context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	_ = lc.Start(context.Background())
	_ = lc.Stop(context.Background())

	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("stop order = %v, want [2 1 0]", order)
	}
}

func TestLifecycle_StopWithError(t *testing.T) {
	lc := NewLifecycle()
	stopErr := errors.New("stop failed")
	ran := false
	lc.OnStop("second", func(_ context.Context) error { ran = true; return nil })
	lc.OnStop("first", func(_ context.Context) error { return stopErr })

	_ = lc.Start(context.Background())
	err := lc.Stop(context.Background())
	if !errors.Is(err, stopErr) {
		t.Errorf("Stop() error = %v, want %v", err, stopErr)
	}
	if !ran {
		t.Error("remaining stop callbacks should run after an error")
	}
}

type mockCloser struct {
	closed bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return nil
}

func TestLifecycle_RegisterCloser(t *testing.T) {
	lc := NewLifecycle()
	closer := &mockCloser{}
	lc.RegisterCloser("closer", closer)

	_ = lc.Start(context.Background())
	_ = lc.Stop(context.Background())

	if !closer.closed {
		t.Error("closer not closed on Stop()")
	}
}
