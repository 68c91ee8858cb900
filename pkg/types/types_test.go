package types

import (
	"testing"
	"time"
)

func TestMemoryUnitValidate(t *testing.T) {
	conf := 0.8
	base := MemoryUnit{
		ID:       "u1",
		AgentID:  "agent",
		Text:     "Alice works at Acme",
		FactType: FactWorld,
	}

	tests := []struct {
		name    string
		mutate  func(u *MemoryUnit)
		wantErr bool
	}{
		{"valid", func(u *MemoryUnit) {}, false},
		{"empty text", func(u *MemoryUnit) { u.Text = "  " }, true},
		{"missing agent", func(u *MemoryUnit) { u.AgentID = "" }, true},
		{"bad fact type", func(u *MemoryUnit) { u.FactType = "gossip" }, true},
		{"confidence on world fact", func(u *MemoryUnit) { u.Confidence = &conf }, true},
		{"confidence on opinion", func(u *MemoryUnit) {
			u.FactType = FactOpinion
			u.Confidence = &conf
		}, false},
		{"fragment without subject", func(u *MemoryUnit) { u.Text = "is very tall" }, true},
		{"single token", func(u *MemoryUnit) { u.Text = "Alice" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := base
			tt.mutate(&u)
			err := u.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestEntityVariants(t *testing.T) {
	e := Entity{Name: "Google"}
	if !e.HasVariant("google") {
		t.Fatal("canonical name should match case-insensitively")
	}
	e.AddVariant("Google Inc")
	e.AddVariant("google inc")
	if len(e.Variants) != 1 {
		t.Fatalf("expected one variant, got %v", e.Variants)
	}
}

func TestTimeRange(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	r := TimeRange{Start: start, End: end}

	if got := r.Center(); !got.Equal(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Center() = %v", got)
	}
	if !r.Contains(start) || !r.Contains(end) {
		t.Fatal("range must be inclusive at both ends")
	}
	if r.Contains(end.Add(time.Nanosecond)) {
		t.Fatal("range must not contain times past the end")
	}
}

func TestCandidateListCount(t *testing.T) {
	c := NewCandidate(&MemoryUnit{ID: "u1"})
	if c.ListCount() != 0 {
		t.Fatalf("ListCount() = %d, want 0", c.ListCount())
	}
	c.Ranks["semantic"] = 1
	c.Ranks["keyword"] = 3
	if c.ListCount() != 2 {
		t.Fatalf("ListCount() = %d, want 2", c.ListCount())
	}
}
