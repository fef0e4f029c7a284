package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage marks a payload that could not be decoded.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidShape marks a decoded payload that is not an object.
	ErrInvalidShape = errors.New("invalid shape")
	// ErrWrite marks a failed or timed out storage write.
	ErrWrite = errors.New("write failed")
)

type Stage string

const (
	StageDecode  Stage = "decode"
	StageFlatten Stage = "flatten"
	StagePersist Stage = "persist"
)

// IngestError reports which step of handling one message failed.
type IngestError struct {
	Stage Stage
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
