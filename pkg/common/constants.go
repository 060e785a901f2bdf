package common

const (
	XRealIPHeader        = "X-Real-IP"
	XForwardedForHeader  = "X-Forwarded-For"
	TrueClientIPHeader   = "True-Client-IP"
	CFConnectingIPHeader = "CF-Connecting-IP"

	AttackModeHeader  = "X-Attack-Mode"
	FingerprintHeader = "X-Client-Fingerprint"
	RetryAfterHeader  = "Retry-After"

	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitResetHeader     = "X-RateLimit-Reset"
)
