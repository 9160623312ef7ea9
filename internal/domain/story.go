package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthStatus is the terminal state of one authentication run.
type AuthStatus string

const (
	AuthStatusOK     AuthStatus = "OK"
	AuthStatusFailed AuthStatus = "FAILED"
)

// AuthStory is one journal row per authentication run, persisted for
// operator post-mortems.
type AuthStory struct {
	RunID          string
	SignerAddress  string
	FunderAddress  string
	SignatureType  SignatureType
	UsedEffective  bool
	Status         AuthStatus
	BalanceUSDC    string // decimal string, empty when unknown
	ErrorDetails   string
	DiagnosisCause Cause
	CreatedAt      time.Time
}

// NewRunID mints a run identifier: run_<unix-millis>_<8 hex chars>.
func NewRunID() string {
	short := uuid.NewString()[:8]
	return fmt.Sprintf("run_%d_%s", time.Now().UnixMilli(), short)
}
