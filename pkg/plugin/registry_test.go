package plugin

import (
	"errors"
	"reflect"
	"testing"
)

type nopPlugin struct{}

func (nopPlugin) Init(InitContext) error { return nil }
func (nopPlugin) Stop()                  {}

func TestRegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	r.Register("test/Echo", func() (Plugin, error) { return nopPlugin{}, nil })
	r.Register("test/Alpha", func() (Plugin, error) { return nopPlugin{}, nil })

	p, err := r.Create("test/Echo")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if p == nil {
		t.Fatal("Create returned nil plugin")
	}

	want := []string{"test/Alpha", "test/Echo"}
	if got := r.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
}

func TestCreateUnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("test/Missing")
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Create on unknown type = %v, want ErrUnknownType", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("test/Echo", func() (Plugin, error) { return nopPlugin{}, nil })

	defer func() {
		if recover() == nil {
			t.Error("Expected duplicate Register to panic")
		}
	}()
	r.Register("test/Echo", func() (Plugin, error) { return nopPlugin{}, nil })
}

func TestRegisterEmptyNamePanics(t *testing.T) {
	r := NewRegistry()

	defer func() {
		if recover() == nil {
			t.Error("Expected Register with empty name to panic")
		}
	}()
	r.Register("", func() (Plugin, error) { return nopPlugin{}, nil })
}

func TestRegisterNilFactoryPanics(t *testing.T) {
	r := NewRegistry()

	defer func() {
		if recover() == nil {
			t.Error("Expected Register with nil factory to panic")
		}
	}()
	r.Register("test/Echo", nil)
}

func TestCreateFactoryError(t *testing.T) {
	errBoom := errors.New("boom")
	r := NewRegistry()
	r.Register("test/Broken", func() (Plugin, error) { return nil, errBoom })

	_, err := r.Create("test/Broken")
	if !errors.Is(err, errBoom) {
		t.Errorf("Create = %v, want wrapped factory error", err)
	}
}

// TestCreateFactoryPanic verifies a panicking factory surfaces as an
// error instead of crashing the caller
func TestCreateFactoryPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("test/Panics", func() (Plugin, error) { panic("factory exploded") })

	p, err := r.Create("test/Panics")
	if err == nil {
		t.Fatal("Expected error from panicking factory")
	}
	if p != nil {
		t.Errorf("Expected nil plugin from panicking factory, got %T", p)
	}
}

func TestCreateNilInstance(t *testing.T) {
	r := NewRegistry()
	r.Register("test/Nil", func() (Plugin, error) { return nil, nil })

	if _, err := r.Create("test/Nil"); err == nil {
		t.Error("Expected error when factory returns no instance")
	}
}
