package skew

import (
	"testing"
	"time"
)

var reference = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

func TestWindowContains(t *testing.T) {
	window := Window{Tolerance: 60 * time.Second}

	cases := []struct {
		name    string
		instant time.Time
		want    bool
	}{
		{"exact", reference, true},
		{"lower bound", reference.Add(-60 * time.Second), true},
		{"upper bound", reference.Add(60 * time.Second), true},
		{"too old", reference.Add(-61 * time.Second), false},
		{"too far ahead", reference.Add(61 * time.Second), false},
	}

	for _, tc := range cases {
		if got := window.Contains(reference, tc.instant); got != tc.want {
			t.Fatalf("%s: Contains returned %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWindowZeroTolerance(t *testing.T) {
	window := Window{}

	if !window.Contains(reference, reference) {
		t.Fatal("zero tolerance must admit the reference instant itself")
	}
	if window.Contains(reference, reference.Add(time.Nanosecond)) {
		t.Fatal("zero tolerance must reject any future instant")
	}
	if window.Contains(reference, reference.Add(-time.Nanosecond)) {
		t.Fatal("zero tolerance must reject any past instant")
	}
}

func TestDefaultWindows(t *testing.T) {
	defaults := DefaultWindows()

	if got := defaults.Response.Tolerance; got != 60*time.Second {
		t.Fatalf("response tolerance is %v, want 60s", got)
	}
	if got := defaults.Assertion.Tolerance; got != 3000*time.Second {
		t.Fatalf("assertion tolerance is %v, want 3000s", got)
	}
	if got := defaults.Authentication.Tolerance; got != 7200*time.Second {
		t.Fatalf("authentication tolerance is %v, want 7200s", got)
	}
}

func TestElapsed(t *testing.T) {
	if Elapsed(reference, reference.Add(time.Second)) {
		t.Fatal("boundary in the future must not count as elapsed")
	}
	if !Elapsed(reference, reference) {
		t.Fatal("NotOnOrAfter boundary is exclusive, the instant itself is elapsed")
	}
	if !Elapsed(reference, reference.Add(-time.Second)) {
		t.Fatal("boundary in the past must count as elapsed")
	}
}

func TestInFuture(t *testing.T) {
	if !InFuture(reference, reference.Add(time.Second)) {
		t.Fatal("later boundary must report in the future")
	}
	if InFuture(reference, reference) {
		t.Fatal("NotBefore boundary equal to now is already reached")
	}
	if InFuture(reference, reference.Add(-time.Second)) {
		t.Fatal("earlier boundary is already reached")
	}
}
