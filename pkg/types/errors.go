package types

// GuardError is the error shape carried from an admission verdict to the
// HTTP boundary. Code is the machine-readable rejection classification
// ("blocked", "burst", "suspicious", "fingerprint_rate").
type GuardError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GuardError) Error() string {
	return e.Message
}

func (e *GuardError) Unwrap() error {
	return e.Err
}
