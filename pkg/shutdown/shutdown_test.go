package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	mgr := New(5 * time.Second)

	var order []string
	mgr.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	mgr.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})
	mgr.Register("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	mgr.Shutdown()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d hooks to run, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Hook %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdownContinuesPastFailedHook(t *testing.T) {
	mgr := New(5 * time.Second)

	ran := false
	mgr.Register("survivor", func(ctx context.Context) error {
		ran = true
		return nil
	})
	mgr.Register("failing", func(ctx context.Context) error {
		return errors.New("release failed")
	})

	mgr.Shutdown()

	if !ran {
		t.Error("Expected hooks after a failure to still run")
	}
}

func TestShutdownTimeoutPropagates(t *testing.T) {
	mgr := New(20 * time.Millisecond)

	var deadlineSet bool
	mgr.Register("check-deadline", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})

	mgr.Shutdown()

	if !deadlineSet {
		t.Error("Expected hook context to carry the shutdown deadline")
	}
}

type fakeCloser struct {
	closed bool
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestCloseResource(t *testing.T) {
	closer := &fakeCloser{}
	hook := CloseResource("journal", closer)

	if err := hook(context.Background()); err != nil {
		t.Fatalf("Failed to run close hook: %v", err)
	}
	if !closer.closed {
		t.Error("Expected Close to be called")
	}
}

func TestCloseResourceWrapsError(t *testing.T) {
	cause := errors.New("disk gone")
	closer := &fakeCloser{err: cause}
	hook := CloseResource("journal", closer)

	err := hook(context.Background())
	if err == nil {
		t.Fatal("Expected an error from the failing closer")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
}
