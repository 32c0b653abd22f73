package timewarrior

import (
	"reflect"
	"testing"
)

// ensure fails the test immediately if err is non-nil, mirroring the
// teacher package's bare must/ensure helpers rather than an assertion
// framework.
func ensure(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("** failed: %v", err)
	}
}

func must[T any](t testing.TB, v T, err error) T {
	t.Helper()
	ensure(t, err)
	return v
}

func eq[T any](t testing.TB, got, want T) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("** got %#v, wanted %#v", got, want)
	}
}

func ok(t testing.TB, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Fatalf("** condition failed: %s", msg)
	}
}
