package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/timmy/hubexport/internal/domain"
)

func TestResumeStage(t *testing.T) {
	pending := func(id string, kind domain.JobKind) *domain.ExportJob {
		return &domain.ExportJob{JobID: id, Kind: kind}
	}
	ready := func(id string, kind domain.JobKind) *domain.ExportJob {
		j := pending(id, kind)
		j.MarkReady()
		return j
	}

	tests := []struct {
		name      string
		artifacts *domain.Artifacts
		want      domain.Stage
	}{
		{"nil artifacts", nil, domain.StageAuthenticating},
		{"no token", &domain.Artifacts{}, domain.StageAuthenticating},
		{"token only", &domain.Artifacts{AccessToken: "t"}, domain.StageSubmitting},
		{
			"one job id missing",
			&domain.Artifacts{AccessToken: "t", Jobs: map[domain.JobKind]*domain.ExportJob{
				domain.JobKindParquet: pending("p1", domain.JobKindParquet),
			}},
			domain.StageSubmitting,
		},
		{
			"job ids, none ready",
			&domain.Artifacts{AccessToken: "t", Jobs: map[domain.JobKind]*domain.ExportJob{
				domain.JobKindParquet:  pending("p1", domain.JobKindParquet),
				domain.JobKindManifest: pending("m1", domain.JobKindManifest),
			}},
			domain.StagePolling,
		},
		{
			"one ready",
			&domain.Artifacts{AccessToken: "t", Jobs: map[domain.JobKind]*domain.ExportJob{
				domain.JobKindParquet:  ready("p1", domain.JobKindParquet),
				domain.JobKindManifest: pending("m1", domain.JobKindManifest),
			}},
			domain.StagePolling,
		},
		{
			"both ready",
			&domain.Artifacts{AccessToken: "t", Jobs: map[domain.JobKind]*domain.ExportJob{
				domain.JobKindParquet:  ready("p1", domain.JobKindParquet),
				domain.JobKindManifest: ready("m1", domain.JobKindManifest),
			}},
			domain.StagePublishing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResumeStage(tt.artifacts); got != tt.want {
				t.Errorf("ResumeStage() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		k    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{-1, time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.k, time.Second); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.k, got, tt.want)
		}
	}
}

func TestState_Transitions(t *testing.T) {
	s := NewState(3)
	if s.Stage != domain.StageIdle {
		t.Fatalf("initial stage = %s", s.Stage)
	}

	s = s.Start()
	want := []domain.Stage{
		domain.StageSubmitting,
		domain.StagePolling,
		domain.StagePublishing,
		domain.StageSucceeded,
		domain.StageSucceeded,
	}
	for _, stage := range want {
		s = s.Advance()
		if s.Stage != stage {
			t.Fatalf("Advance() = %s, want %s", s.Stage, stage)
		}
	}
	if !s.Terminal() {
		t.Error("succeeded must be terminal")
	}
}

func TestState_FailCountsEveryFailureOnce(t *testing.T) {
	artifacts := &domain.Artifacts{AccessToken: "t"}
	boom := errors.New("boom")

	s := NewState(3).Start()
	s, d := s.Fail(boom, artifacts, time.Second)
	if s.RetryCount != 1 || !d.Retry || d.Delay != 2*time.Second || s.Stage != domain.StageSubmitting {
		t.Fatalf("after 1st failure: %+v %+v", s, d)
	}

	s, d = s.Fail(boom, artifacts, time.Second)
	if s.RetryCount != 2 || !d.Retry || d.Delay != 4*time.Second {
		t.Fatalf("after 2nd failure: %+v %+v", s, d)
	}

	s, d = s.Fail(boom, artifacts, time.Second)
	if s.RetryCount != 3 || d.Retry || s.Stage != domain.StageFailed {
		t.Fatalf("after 3rd failure: %+v %+v", s, d)
	}
	if s.LastError != "boom" {
		t.Errorf("LastError = %q", s.LastError)
	}

	if restarted := s.Start(); restarted.RetryCount != 0 || restarted.Stage != domain.StageAuthenticating {
		t.Errorf("Start() must reset the counter: %+v", restarted)
	}
}

func TestState_FailValidationIsFinal(t *testing.T) {
	s := NewState(3).Start()
	s, d := s.Fail(&domain.ValidationError{Field: "dataset"}, nil, time.Second)
	if d.Retry || s.Stage != domain.StageFailed {
		t.Errorf("validation failure must not be retried: %+v %+v", s, d)
	}
}

func TestValidateDataset(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"my-set_1", true},
		{"abc", true},
		{"My Set", false},
		{"", false},
		{"a/b", false},
		{"UPPER", false},
	}

	for _, tt := range tests {
		err := ValidateDataset(tt.name)
		if tt.valid && err != nil {
			t.Errorf("ValidateDataset(%q) = %v, want nil", tt.name, err)
		}
		if !tt.valid {
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("ValidateDataset(%q) = %v, want *ValidationError", tt.name, err)
			}
		}
	}
}
