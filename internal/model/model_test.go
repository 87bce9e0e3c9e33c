package model

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"new", StatusNew, false},
		{" Fixed ", StatusFixed, false},
		{"wontfix", StatusWontFix, false},
		{"closed", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStatusList(t *testing.T) {
	got, err := ParseStatusList("new, investigating,,duplicate")
	if err != nil {
		t.Fatalf("ParseStatusList() failed: %v", err)
	}
	want := []Status{StatusNew, StatusInvestigating, StatusDuplicate}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if got, err := ParseStatusList("  "); err != nil || got != nil {
		t.Errorf("ParseStatusList(blank) = %v, %v; want nil, nil", got, err)
	}

	if _, err := ParseStatusList("new,bogus"); err == nil {
		t.Error("ParseStatusList() with unknown status should fail")
	}
}

func TestStatusOpen(t *testing.T) {
	for _, st := range Statuses {
		want := st == StatusNew || st == StatusInvestigating
		if st.Open() != want {
			t.Errorf("%s.Open() = %v, want %v", st, st.Open(), want)
		}
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("Crash"); err != nil || k != KindCrash {
		t.Errorf("ParseKind(Crash) = %q, %v", k, err)
	}
	if _, err := ParseKind("screenshot"); err == nil {
		t.Error("ParseKind(screenshot) should fail")
	}
	if KindFeedback.ArtifactDir() != "screenshots" || KindCrash.ArtifactDir() != "logs" {
		t.Error("unexpected artifact directories")
	}
}

func TestNewSubmissionValidate(t *testing.T) {
	valid := NewSubmission{
		Kind:         KindCrash,
		SourceID:     1,
		SubmissionID: "sub-1",
		CreatedAt:    time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	missingID := valid
	missingID.SubmissionID = ""
	if err := missingID.Validate(); err == nil {
		t.Error("Validate() should reject empty submission id")
	}

	badKind := valid
	badKind.Kind = "bug"
	if err := badKind.Validate(); err == nil {
		t.Error("Validate() should reject unknown kind")
	}

	noSource := valid
	noSource.SourceID = 0
	if err := noSource.Validate(); err == nil {
		t.Error("Validate() should reject missing source")
	}
}

func TestStatsComputeUnfixed(t *testing.T) {
	s := Stats{
		Total: 10,
		ByStatus: map[Status]int{
			StatusNew:           3,
			StatusInvestigating: 2,
			StatusFixed:         2,
			StatusWontFix:       1,
			StatusDuplicate:     2,
		},
	}
	if got := s.ComputeUnfixed(); got != 5 {
		t.Errorf("ComputeUnfixed() = %d, want 5", got)
	}
}
