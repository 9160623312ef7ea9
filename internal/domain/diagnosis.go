package domain

// Cause is the closed taxonomy of probable authentication failure root causes.
type Cause string

const (
	CauseWrongKeyType       Cause = "WRONG_KEY_TYPE"       // supplied creds belong to a different key or signature type
	CauseWalletNotActivated Cause = "WALLET_NOT_ACTIVATED" // wallet never traded, exchange cannot issue an API key
	CauseWrongWalletBinding Cause = "WRONG_WALLET_BINDING" // signer/funder mismatch, supplied and derived both fail
	CauseExpiredCredentials Cause = "EXPIRED_CREDENTIALS"  // previously working credentials now rejected
	CauseDeriveFailed       Cause = "DERIVE_FAILED"        // derived credentials do not verify
	CauseNetworkError       Cause = "NETWORK_ERROR"
	CauseUnknown            Cause = "UNKNOWN"
)

// Confidence grades how certain a diagnosis is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Diagnosis is operator guidance for an authentication failure. Remediation
// steps are data for humans, never executed.
type Diagnosis struct {
	Cause       Cause
	Confidence  Confidence
	Summary     string
	Remediation []string
}
