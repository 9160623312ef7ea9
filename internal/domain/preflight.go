package domain

import "time"

// PreflightStatus is the terminal state of one verification cycle.
type PreflightStatus string

const (
	PreflightOK          PreflightStatus = "OK"
	PreflightAuthFail    PreflightStatus = "AUTH_FAIL"
	PreflightParamFail   PreflightStatus = "PARAM_FAIL"
	PreflightFundsFail   PreflightStatus = "FUNDS_FAIL"
	PreflightNetworkFail PreflightStatus = "NETWORK_FAIL"
	PreflightServerError PreflightStatus = "SERVER_ERROR"
)

// AuthOK reports whether the exchange accepted the signature, regardless of
// whether the request itself was usable. PARAM_FAIL and FUNDS_FAIL both mean
// the HMAC was fine and only the request shape or the balance was not.
func (s PreflightStatus) AuthOK() bool {
	return s == PreflightOK || s == PreflightParamFail || s == PreflightFundsFail
}

// AuthFailReason narrows an AUTH_FAIL to its probable mechanical cause.
type AuthFailReason string

const (
	// ReasonMessageCanonicalization means the signed path did not match the
	// requested path byte-for-byte, typically query params missing from the
	// HMAC message.
	ReasonMessageCanonicalization AuthFailReason = "MESSAGE_CANONICALIZATION"
	ReasonBadCredentials          AuthFailReason = "BAD_CREDENTIALS" // key/secret/passphrase rejected
	ReasonClockSkew               AuthFailReason = "CLOCK_SKEW"      // timestamp outside the server window
	ReasonUnknown                 AuthFailReason = "UNKNOWN"
)

// PreflightResult is the classified outcome of one verification cycle.
// A skipped cycle (backoff window still open) produces no result at all.
type PreflightResult struct {
	Status     PreflightStatus
	HTTPStatus int
	// Reason is set only for AUTH_FAIL.
	Reason  AuthFailReason
	Message string
	// Options records the signing configuration actually used.
	Options   SigningOptions
	CheckedAt time.Time
	Elapsed   time.Duration
}

// OK reports whether the cycle proves live trading can proceed.
func (r PreflightResult) OK() bool {
	return r.Status == PreflightOK
}

// PreflightRecord is the journal row written after each completed cycle.
type PreflightRecord struct {
	Status     PreflightStatus
	Reason     AuthFailReason
	HTTPStatus int
	BackoffMs  int64
	CheckedAt  time.Time
}
