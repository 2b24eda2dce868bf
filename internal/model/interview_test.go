package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSettingsTarget(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "numeric minutes", raw: `{"duration":5}`, want: 5 * time.Minute},
		{name: "string minutes", raw: `{"duration":"10"}`, want: 10 * time.Minute},
		{name: "custom with minutes", raw: `{"duration":"custom","custom_duration_minutes":45}`, want: 45 * time.Minute},
		{name: "custom without minutes", raw: `{"duration":"custom"}`, want: 20 * time.Minute},
		{name: "missing", raw: `{}`, want: 20 * time.Minute},
		{name: "huge minutes", raw: `{"duration":9000000000000000}`, want: 24 * time.Hour},
		{name: "huge custom minutes", raw: `{"duration":"custom","custom_duration_minutes":9223372036854775807}`, want: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Settings
			if err := json.Unmarshal([]byte(tt.raw), &s); err != nil {
				t.Fatalf("unmarshal settings: %v", err)
			}
			if got := s.Target(20); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDurationChoiceRejectsObjects(t *testing.T) {
	var s Settings
	if err := json.Unmarshal([]byte(`{"duration":{"minutes":5}}`), &s); err == nil {
		t.Fatal("expected error for object duration")
	}
}

func TestParseJobRole(t *testing.T) {
	role, err := ParseJobRole("data analyst")
	if err != nil {
		t.Fatalf("ParseJobRole failed: %v", err)
	}
	if role != RoleDataAnalyst {
		t.Fatalf("expected %q, got %q", RoleDataAnalyst, role)
	}

	if _, err := ParseJobRole("astronaut"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestParseModeDefaultsToChat(t *testing.T) {
	mode, err := ParseMode("")
	if err != nil || mode != ModeChat {
		t.Fatalf("expected chat mode, got %q (%v)", mode, err)
	}
	if _, err := ParseMode("video"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNewTurnIDsAreUnique(t *testing.T) {
	now := time.Now()
	a := NewTurn(SpeakerUser, "a", now)
	b := NewTurn(SpeakerUser, "b", now)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", a.CreatedAt.Location())
	}
}

func TestDepthOrdinal(t *testing.T) {
	if DepthShallow.Ordinal() != 1 || DepthModerate.Ordinal() != 2 || DepthDeep.Ordinal() != 3 {
		t.Fatal("unexpected depth ordinals")
	}
	if Depth("bogus").Ordinal() != 1 {
		t.Fatal("unknown depth should count as shallow")
	}
}
