package domain

// JobKind identifies which export a backend job produces.
// Values include JobKindParquet and JobKindManifest.
type JobKind string

const (
	JobKindParquet  JobKind = "parquet"
	JobKindManifest JobKind = "manifest"
)

// JobKinds lists every kind submitted per workflow run, in submission order.
var JobKinds = []JobKind{JobKindParquet, JobKindManifest}

// FileName returns the path the artifact is committed under in the destination repository.
func (k JobKind) FileName(dataset string) string {
	switch k {
	case JobKindParquet:
		return "data/" + dataset + ".parquet"
	case JobKindManifest:
		return "croissant.json"
	default:
		return string(k)
	}
}

// ExportJob represents one backend export task and its observed progress.
type ExportJob struct {
	JobID           string  `json:"job_id"`
	Kind            JobKind `json:"kind"`
	Ready           bool    `json:"ready"`
	ProgressPercent int     `json:"progress_percent"`
}

// MarkReady moves the job to its terminal state. Ready never reverts.
func (j *ExportJob) MarkReady() {
	j.Ready = true
	j.ProgressPercent = 100
}

// ObserveProgress records percent as the job's high-water mark and reports
// whether it should be surfaced. Lower readings than a previous one are ignored.
func (j *ExportJob) ObserveProgress(percent int) (int, bool) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < j.ProgressPercent {
		return j.ProgressPercent, false
	}
	j.ProgressPercent = percent
	return percent, true
}

// JobRefs are the terminal status URLs of both export jobs. The publishing
// step streams the artifacts from these URLs.
type JobRefs struct {
	Parquet  string `json:"parquet"`
	Manifest string `json:"manifest"`
}
