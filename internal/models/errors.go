package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	// ErrInvalidArgument marks malformed input to a pure function. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch is returned when vectors of different lengths are compared.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrProvider wraps failures of an external embedding/LLM/network provider.
	ErrProvider = errors.New("provider error")
	// ErrParse marks a response from an external capability that could not be
	// decoded into the expected structure.
	ErrParse = errors.New("unparseable provider response")
	// ErrPipelineFailure is returned when a fatal stage halts an analysis run.
	ErrPipelineFailure = errors.New("pipeline failure")

	ErrEmbeddingFailed = errors.New("embedding generation failed")
)
