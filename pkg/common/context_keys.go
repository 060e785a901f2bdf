package common

type contextKey string

const (
	ClientIPContextKey      contextKey = "client_ip"
	FingerprintIdContextKey contextKey = "fingerprint_id"
)
