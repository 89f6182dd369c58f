package domain

import "time"

// Stage is a coarse workflow stage tag.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageAuthenticating Stage = "authenticating"
	StageSubmitting     Stage = "submitting"
	StagePolling        Stage = "polling"
	StagePublishing     Stage = "publishing"
	StageSucceeded      Stage = "succeeded"
	StageFailed         Stage = "failed"
)

// Artifacts are the outputs of completed stages within one run. Resume decisions
// are made from these alone.
type Artifacts struct {
	AccessToken string
	Username    string
	Jobs        map[JobKind]*ExportJob
}

// HasToken reports whether authentication produced a token.
func (a *Artifacts) HasToken() bool {
	return a != nil && a.AccessToken != ""
}

// HasJobIDs reports whether every kind has been submitted.
func (a *Artifacts) HasJobIDs() bool {
	if a == nil || len(a.Jobs) == 0 {
		return false
	}
	for _, kind := range JobKinds {
		job, ok := a.Jobs[kind]
		if !ok || job == nil || job.JobID == "" {
			return false
		}
	}
	return true
}

// AllReady reports whether every submitted job reached its terminal state.
func (a *Artifacts) AllReady() bool {
	if !a.HasJobIDs() {
		return false
	}
	for _, kind := range JobKinds {
		if !a.Jobs[kind].Ready {
			return false
		}
	}
	return true
}

// WorkflowRun is the persisted history record of one user-initiated run.
type WorkflowRun struct {
	ID           string     `gorm:"type:text;primaryKey" json:"id"`
	Dataset      string     `gorm:"type:text;not null;index" json:"dataset"`
	SourceURL    string     `gorm:"type:text" json:"source_url"`
	Stage        Stage      `gorm:"type:text;index;default:idle" json:"stage"`
	Message      string     `gorm:"type:text" json:"message,omitempty"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`
	LastError    string     `gorm:"type:text" json:"last_error,omitempty"`
	RepositoryID string     `gorm:"type:text" json:"repository_id,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for WorkflowRun.
func (WorkflowRun) TableName() string {
	return "workflow_runs"
}

// StoredValue is a single entry in the key/value store that carries state
// across the redirect boundary.
type StoredValue struct {
	Key       string     `gorm:"type:text;primaryKey" json:"key"`
	Value     string     `gorm:"type:text" json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name for StoredValue.
func (StoredValue) TableName() string {
	return "stored_values"
}

// Expired reports whether the value is past its expiry at now.
func (v *StoredValue) Expired(now time.Time) bool {
	return v.ExpiresAt != nil && !now.Before(*v.ExpiresAt)
}
