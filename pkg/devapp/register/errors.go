// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package register

import "fmt"

// Stage names the step of a registration run that failed.
type Stage string

const (
	StageManifest Stage = "manifest"
	StageBind     Stage = "bind"
	StageCallback Stage = "callback"
	StageExchange Stage = "exchange"
	StagePersist  Stage = "persist"
)

// StageError is returned for every failed run. Nothing is retried.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
