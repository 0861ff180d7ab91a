package audit

import (
	"strings"
	"testing"
	"time"
)

func TestFormatEntry(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	entry := FormatEntry(ts, "apt-get install -y apache2")

	if !strings.HasPrefix(entry, "=== 2025-03-14T09:26:53.589793Z\n") {
		t.Errorf("unexpected entry header: %q", entry)
	}
	if !strings.HasSuffix(entry, "apt-get install -y apache2\n") {
		t.Errorf("expected newline-terminated command, got %q", entry)
	}
}

func TestFormatEntryMultiline(t *testing.T) {
	ts := time.Now().UTC()
	command := "line one\nline two\n"

	entry := FormatEntry(ts, command)

	// Already-terminated bodies must not gain a second newline.
	if strings.HasSuffix(entry, "\n\n") {
		t.Errorf("expected a single trailing newline, got %q", entry)
	}
}

func TestParseLogRoundTrip(t *testing.T) {
	ts1 := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	ts2 := time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)

	raw := FormatEntry(ts1, "systemctl enable --now apache2") +
		FormatEntry(ts2, "mysql <<'EOF'\nCREATE DATABASE app;\nEOF")

	entries, err := ParseLog(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if !entries[0].Timestamp.Equal(ts1) {
		t.Errorf("expected timestamp %v, got %v", ts1, entries[0].Timestamp)
	}
	if entries[0].Command != "systemctl enable --now apache2" {
		t.Errorf("unexpected first command: %q", entries[0].Command)
	}

	// Multi-line bodies with marker-free lines survive verbatim.
	want := "mysql <<'EOF'\nCREATE DATABASE app;\nEOF"
	if entries[1].Command != want {
		t.Errorf("expected %q, got %q", want, entries[1].Command)
	}
}

func TestParseLogOrdering(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString(FormatEntry(base.Add(time.Duration(i)*time.Minute), "cmd"))
	}

	entries, err := ParseLog(b.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("entries out of order at index %d", i)
		}
	}
}

func TestParseLogMalformedTimestamp(t *testing.T) {
	raw := "=== not-a-timestamp\nsome command\n"

	if _, err := ParseLog(raw); err == nil {
		t.Fatal("expected an error for a malformed timestamp")
	}
}

func TestParseLogEmpty(t *testing.T) {
	entries, err := ParseLog("")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestTail(t *testing.T) {
	entries := make([]Entry, 10)
	for i := range entries {
		entries[i].Command = strings.Repeat("x", i+1)
	}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"last three", 3, 3},
		{"more than available", 20, 10},
		{"zero means all", 0, 10},
		{"negative means all", -1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tail(entries, tt.n)
			if len(got) != tt.want {
				t.Fatalf("expected %d entries, got %d", tt.want, len(got))
			}
			if tt.n > 0 && tt.n < 10 {
				if got[len(got)-1].Command != entries[9].Command {
					t.Error("tail must keep the newest entries")
				}
			}
		})
	}
}
