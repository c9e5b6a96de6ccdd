package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "yesterday", "-5", "2024-13-01"} {
		if _, ok := ParseTime(s); ok {
			t.Fatalf("ParseTime(%q) should fail", s)
		}
	}
}

func TestParseMonthKey(t *testing.T) {
	if got, ok := ParseMonthKey("2025-03"); !ok || got != "2025-03" {
		t.Fatalf("got %q %v", got, ok)
	}
	for _, bad := range []string{"", "2025-13", "03-2025", "2025/03"} {
		if _, ok := ParseMonthKey(bad); ok {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestAddMonthsClampsDay(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 9, 30, 0, 0, time.UTC)
	if got := AddMonths(jan31, 1); !got.Equal(time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("got %v", got)
	}
	mar15 := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := AddMonths(mar15, 1); !got.Equal(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %v", got)
	}
	dec31 := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	if got := AddMonths(dec31, 2); !got.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %v", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(0, 1, 100) != 1 || Clamp(500, 1, 100) != 100 || Clamp(50, 1, 100) != 50 {
		t.Fatalf("clamp broken")
	}
}
