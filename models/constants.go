package models

// ✅ Wildcard axis value
const Any = "ANY"

// ✅ Store key prefixes
const (
	QueueKeyPrefix    = "queue"
	UserKeyPrefix     = "user:"
	SentinelKeyPrefix = "ttl:"
)

// ✅ Realtime events
const (
	EventMatchFound       = "match_found"
	EventDisconnectReason = "disconnect_reason"
)

// ✅ Close reasons sent with disconnect_reason
const (
	ReasonMatchFound      = "Match found"
	ReasonTimedOut        = "Matchmaking timed out"
	ReasonCancelled       = "Matchmaking cancelled"
	ReasonReplaced        = "Connected from another session"
	ReasonUnauthenticated = "Unauthenticated"
)

// ✅ User roles accepted on bearer credentials
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
