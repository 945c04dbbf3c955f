package client

import (
	"fmt"

	"github.com/pkg/errors"

	"redeem.dev/kit/protocol"
)

type Stage string

const (
	StagePlan   Stage = "plan"
	StageBatch  Stage = "batch"
	StageSubmit Stage = "submit"
	StageCosign Stage = "cosign"
)

// StageError reports which phase of a flow failed. LedgerChanged is set when
// the ledger may hold partial effects of the flow. BatchIndex is -1 unless a
// specific batch failed.
type StageError struct {
	Stage         Stage
	LedgerChanged bool
	BatchIndex    int
	Err           error
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.BatchIndex >= 0 {
		return fmt.Sprintf("%s (batch %d): %v", e.Stage, e.BatchIndex, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr tags err with stage unless an inner stage already claimed it.
func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var inner *StageError
	if errors.As(err, &inner) {
		return err
	}
	return &StageError{Stage: stage, BatchIndex: -1, Err: err}
}

func submitErr(index int, ledgerChanged bool, err error) error {
	return &StageError{Stage: StageSubmit, LedgerChanged: ledgerChanged, BatchIndex: index, Err: err}
}

func errf(code protocol.ErrorCode, format string, args ...any) error {
	return protocol.Errorf(code, format, args...)
}
