package processor

import (
	"context"
	"os/exec"
)

// Availability is the probed state of one collaborator.
type Availability int

const (
	Unconfigured Availability = iota
	Unavailable
	Available
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return "unconfigured"
	}
}

func (a Availability) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Capabilities is resolved once at startup and injected into the Processor.
type Capabilities struct {
	Transcription Availability `json:"transcription"`
	Summarization Availability `json:"summarization"`
	Capture       Availability `json:"capture"`
	RemoteNotes   Availability `json:"remote_notes"`
}

// HealthChecker is implemented by the HTTP collaborators.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// ProbeHealth reports Unconfigured for a nil checker, otherwise the result of
// its health check.
func ProbeHealth(ctx context.Context, hc HealthChecker) Availability {
	if hc == nil {
		return Unconfigured
	}
	if hc.Healthy(ctx) {
		return Available
	}
	return Unavailable
}

// ProbeBinary reports whether an enabled feature's executable can be found.
func ProbeBinary(enabled bool, path string) Availability {
	if !enabled {
		return Unconfigured
	}
	if _, err := exec.LookPath(path); err != nil {
		return Unavailable
	}
	return Available
}

// ProbeConfigured maps a configured/not-configured flag to Availability.
func ProbeConfigured(configured bool) Availability {
	if configured {
		return Available
	}
	return Unconfigured
}
