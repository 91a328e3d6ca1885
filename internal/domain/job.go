package domain

// Phase is a stage of a remote processing job.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseProcessing
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUploading:
		return "upload"
	case PhaseProcessing:
		return "process"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseFailed }

// Surface identifies an independent job or playback slot on a page.
type Surface string

// JobResult is what the process phase resolves to.
type JobResult struct {
	// Locator is a downloadable URL or path of the produced artifact.
	Locator string
	// Artifact is set when the service returned bytes directly.
	Artifact *Artifact
	Metadata map[string]any
}
