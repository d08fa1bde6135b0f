package tasks

import (
	"errors"
	"fmt"
)

var (
	ErrAPIDisabled        = errors.New("Cisco API access not enabled")
	ErrMissingCredentials = errors.New("Cisco API client credentials not configured")
	ErrNoQueries          = errors.New("no Cisco EoX API queries configured")
	ErrNoYears            = errors.New("no years provided")
	ErrRunInProgress      = errors.New("run already in progress")
)

// RunInProgressError is returned when a run-lock is held by another task.
type RunInProgressError struct {
	Lock   string
	TaskID string
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("%s: %s held by task %s", ErrRunInProgress, e.Lock, e.TaskID)
}

func (e *RunInProgressError) Is(target error) bool {
	return target == ErrRunInProgress
}
