package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("i2c nack")
	for _, c := range []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", NotFound, NotFound},
		{"wrapped code", fmt.Errorf("load: %w", Decode), Decode},
		{"E", Wrap(SensorRead, "am2320.measure", cause), SensorRead},
		{"wrapped E", fmt.Errorf("iteration: %w", New(Rejected, "post", "503")), Rejected},
		{"foreign", cause, Error},
	} {
		if got := Of(c.err); got != c.want {
			t.Fatalf("%s: Of = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(StoreWrite, "set", nil); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
}

func TestEUnwrapAndMessage(t *testing.T) {
	cause := errors.New("flash busy")
	err := Wrap(StoreWrite, "nvs.set", cause)
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause")
	}
	if got, want := err.Error(), "nvs.set: store_write: flash busy"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !Is(err, StoreWrite) {
		t.Fatal("Is(StoreWrite) = false")
	}
}

func TestOfOutermostWins(t *testing.T) {
	err := Wrap(StoreWrite, "samplebuf.persist", NotFound)
	if got := Of(err); got != StoreWrite {
		t.Fatalf("Of = %q, want %q", got, StoreWrite)
	}
}
