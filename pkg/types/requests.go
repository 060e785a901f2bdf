package types

import "time"

type CreateDenyEntryRequest struct {
	Identity        string `json:"identity"`
	Reason          string `json:"reason"`
	DurationSeconds int64  `json:"duration_seconds"`
}

type CreateAllowEntryRequest struct {
	Identity string `json:"identity"`
}

type GuardStatusResponse struct {
	AttackMode         bool       `json:"attack_mode"`
	AttackModeSince    *time.Time `json:"attack_mode_since,omitempty"`
	AttackModeSeconds  int64      `json:"attack_mode_seconds,omitempty"`
	RequestsThisMinute int64      `json:"requests_this_minute"`
	DenyEntries        int64      `json:"deny_entries"`
	AllowEntries       int64      `json:"allow_entries"`
}
