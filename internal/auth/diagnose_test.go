package auth

import (
	"testing"

	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDiagnose_WalletNotActivated(t *testing.T) {
	d := Diagnose(DiagnosisInput{
		DeriveEnabled: true,
		DeriveFailed:  true,
		DeriveError:   "Could not create api key",
	})
	assert.Equal(t, domain.CauseWalletNotActivated, d.Cause)
	assert.Equal(t, domain.ConfidenceHigh, d.Confidence)
	assert.NotEmpty(t, d.Remediation)
}

func TestDiagnose_WrongKeyType(t *testing.T) {
	d := Diagnose(DiagnosisInput{
		UserProvidedKeys: true,
		UserKeysFailed:   true,
		VerifyFailed:     true,
		VerifyStatus:     401,
		VerifyMessage:    "Invalid api key",
	})
	assert.Equal(t, domain.CauseWrongKeyType, d.Cause)
	assert.Equal(t, domain.ConfidenceHigh, d.Confidence)
}

func TestDiagnose_BranchPriority(t *testing.T) {
	// Matches both the wrong-key-type and the wallet-not-activated branch:
	// the tree is fixed-order, the first match wins.
	d := Diagnose(DiagnosisInput{
		UserProvidedKeys: true,
		UserKeysFailed:   true,
		VerifyStatus:     401,
		VerifyMessage:    "unauthorized",
		DeriveEnabled:    true,
		DeriveFailed:     true,
		DeriveError:      "could not create api key",
	})
	assert.Equal(t, domain.CauseWrongKeyType, d.Cause)
}

func TestDiagnose_WrongWalletBinding(t *testing.T) {
	d := Diagnose(DiagnosisInput{
		UserProvidedKeys: true,
		UserKeysFailed:   true,
		DeriveEnabled:    true,
		VerifyFailed:     true,
		VerifyStatus:     401,
		VerifyMessage:    "signature does not match funder",
	})
	assert.Equal(t, domain.CauseWrongWalletBinding, d.Cause)
	assert.Equal(t, domain.ConfidenceMedium, d.Confidence)
}

func TestDiagnose_ExpiredCredentials(t *testing.T) {
	d := Diagnose(DiagnosisInput{
		DeriveEnabled:    true,
		VerifyFailed:     true,
		VerifyStatus:     401,
		VerifyMessage:    "Unauthorized",
		PreviouslyWorked: true,
	})
	assert.Equal(t, domain.CauseExpiredCredentials, d.Cause)
}

func TestDiagnose_DerivedCredsDoNotVerify(t *testing.T) {
	d := Diagnose(DiagnosisInput{
		DeriveEnabled: true,
		VerifyFailed:  true,
		VerifyStatus:  401,
		VerifyMessage: "Unauthorized",
	})
	assert.Equal(t, domain.CauseDeriveFailed, d.Cause)
}

func TestDiagnose_NetworkError(t *testing.T) {
	d := Diagnose(DiagnosisInput{
		DeriveEnabled: true,
		DeriveFailed:  true,
		DeriveError:   "dial tcp 1.2.3.4:443: i/o timeout",
	})
	assert.Equal(t, domain.CauseNetworkError, d.Cause)
}

func TestDiagnose_UnknownFallback(t *testing.T) {
	d := Diagnose(DiagnosisInput{})
	assert.Equal(t, domain.CauseUnknown, d.Cause)
	assert.Equal(t, domain.ConfidenceLow, d.Confidence)
	assert.NotEmpty(t, d.Remediation, "even the unknown cause carries next steps")
}

func TestDiagnose_EveryCauseHasRemediation(t *testing.T) {
	causes := []domain.Cause{
		domain.CauseWrongKeyType,
		domain.CauseWalletNotActivated,
		domain.CauseWrongWalletBinding,
		domain.CauseExpiredCredentials,
		domain.CauseDeriveFailed,
		domain.CauseNetworkError,
		domain.CauseUnknown,
	}
	for _, cause := range causes {
		assert.NotEmpty(t, remediationSteps[cause], "cause %s", cause)
	}
}
