package augment

import (
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/diary-lens/catalog"
	"github.com/theimaginaryfoundation/diary-lens/llm"
)

// Error taxonomy. Match with errors.Is.
var (
	ErrUnknownKey           = catalog.ErrUnknownKey
	ErrConfigLoad           = catalog.ErrConfigLoad
	ErrMalformedModelOutput = llm.ErrMalformedModelOutput
	ErrUpstreamModel        = llm.ErrUpstreamModel

	ErrEmptyEntry        = errors.New("diary entry is empty")
	ErrUnsupportedMethod = errors.New("unsupported augmentation method")
)

// Stage names the pipeline phase an error came from.
type Stage string

const (
	StagePerspective Stage = "perspective"
	StageTone        Stage = "tone"
	StageLegacy      Stage = "legacy"
)

// StageError tags a pipeline failure with the phase that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage reports which stage produced err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// upstream classifies a generator failure: anything not already in the taxonomy is an upstream error.
func upstream(name string, err error) error {
	if errors.Is(err, ErrUpstreamModel) || errors.Is(err, ErrMalformedModelOutput) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %w", name, ErrUpstreamModel, err)
}
