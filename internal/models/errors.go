package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig     = errors.New("invalid config")
	ErrExtraction        = errors.New("extraction error")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrGenerationService = errors.New("generation service error")
	ErrIndexUnavailable  = errors.New("index unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyQuestion     = errors.New("question is empty")
)

// Stage is a step of the question answering state machine or of ingestion
type Stage string

const (
	StageIdle       Stage = "idle"
	StageEmbedding  Stage = "embedding"
	StageRetrieving Stage = "retrieving"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
	StageDone       Stage = "done"

	StageExtracting Stage = "extracting"
	StageIndexing   Stage = "indexing"
)

// StageError reports the stage at which a request failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FileFailure records a file that could not be fully ingested
type FileFailure struct {
	File   string `json:"file"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// NewFileFailure builds a FileFailure with a printable reason
func NewFileFailure(file string, stage Stage, err error) FileFailure {
	f := FileFailure{File: file, Stage: stage, Err: err}
	if err != nil {
		f.Reason = err.Error()
	}
	return f
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", f.File, f.Stage, f.Err)
}
