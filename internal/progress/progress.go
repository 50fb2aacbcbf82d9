// Package progress turns implementation evidence into a weighted progress
// percentage, a confidence score, and a status.
//
// Function-level evidence weighs more than file existence because an
// empty file is a weak completion signal. Confidence is a separate axis so
// callers can drop low-confidence automatic writes.
package progress

import (
	"math"

	"github.com/HendryAvila/devpulse/internal/evidence"
)

// Weights applied to the two ratios.
const (
	FileWeight     = 0.4
	FunctionWeight = 0.6
)

// Confidence contributions.
const (
	BaseConfidence     = 0.5
	FileConfidence     = 0.2
	FunctionConfidence = 0.2
	CoverageConfidence = 0.1
)

// Status is the lifecycle state shared by tasks and requirements.
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether automatic updates must leave s alone.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Input is what the calculator consumes.
type Input struct {
	FilesPlanned         int
	FilesImplemented     int
	FunctionsPlanned     int
	FunctionsImplemented int
	// TestCoverage is a project-wide percentage; nil when no signal exists.
	TestCoverage *float64
}

// FromReport builds an Input from a scan report.
func FromReport(r evidence.Report, coverage *float64) Input {
	return Input{
		FilesPlanned:         r.FilesPlanned,
		FilesImplemented:     r.FilesImplemented,
		FunctionsPlanned:     r.FunctionsPlanned,
		FunctionsImplemented: r.FunctionsImplemented,
		TestCoverage:         coverage,
	}
}

// Snapshot is the detection record embedded in a task's latest update.
type Snapshot struct {
	FilesPlanned         int      `json:"files_planned"`
	FilesImplemented     int      `json:"files_implemented"`
	FunctionsPlanned     int      `json:"functions_planned"`
	FunctionsImplemented int      `json:"functions_implemented"`
	TestCoverage         *float64 `json:"test_coverage,omitempty"`
	Confidence           float64  `json:"confidence"`
	Progress             float64  `json:"progress"`
}

// FileRatio is implemented/planned files, or 0 when none are planned.
func FileRatio(in Input) float64 {
	planned, done := normalize(in.FilesPlanned, in.FilesImplemented)
	if planned == 0 {
		return 0
	}
	return float64(done) / float64(planned)
}

// FunctionRatio is implemented/planned functions, or 1 when none are
// planned: tasks without function-level granularity are not penalized.
func FunctionRatio(in Input) float64 {
	planned, done := normalize(in.FunctionsPlanned, in.FunctionsImplemented)
	if planned == 0 {
		return 1
	}
	return float64(done) / float64(planned)
}

// Calculate computes progress and confidence for in.
func Calculate(in Input) Snapshot {
	raw := (FileRatio(in)*FileWeight + FunctionRatio(in)*FunctionWeight) * 100
	return Snapshot{
		FilesPlanned:         in.FilesPlanned,
		FilesImplemented:     in.FilesImplemented,
		FunctionsPlanned:     in.FunctionsPlanned,
		FunctionsImplemented: in.FunctionsImplemented,
		TestCoverage:         in.TestCoverage,
		Confidence:           Confidence(in),
		Progress:             Round(Clamp(raw, 0, 100)),
	}
}

// Confidence scores how much the lexical detection should be trusted.
func Confidence(in Input) float64 {
	c := BaseConfidence
	if in.FilesImplemented > 0 {
		c += FileConfidence
	}
	if in.FunctionsImplemented > 0 {
		c += FunctionConfidence
	}
	if in.TestCoverage != nil && *in.TestCoverage > 0 {
		c += CoverageConfidence
	}
	return Round2(Clamp(c, 0, 1))
}

// DeriveStatus maps progress to a status. Below any threshold the previous
// status is kept, or planning when there is none.
func DeriveStatus(progress float64, previous Status) Status {
	switch {
	case progress >= 100:
		return StatusCompleted
	case progress >= 90:
		return StatusReview
	case progress > 0:
		return StatusInProgress
	case previous != "":
		return previous
	default:
		return StatusPlanning
	}
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round rounds to one decimal place, the precision progress is stored at.
func Round(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// normalize treats negative counts as zero and caps implemented at planned.
func normalize(planned, done int) (int, int) {
	if planned < 0 {
		planned = 0
	}
	if done < 0 {
		done = 0
	}
	if done > planned {
		done = planned
	}
	return planned, done
}
