package events

import "time"

// Kinds written by the surrounding product.
const (
	KindFailedLogin = "failed_login"
	KindLogin       = "login"
	KindRoleChange  = "role_change"
	KindDataRead    = "data_read"
	KindBulkInsert  = "bulk_insert"
	KindBulkUpdate  = "bulk_update"
	KindBulkDelete  = "bulk_delete"
	KindRateLimited = "rate_limited"
	KindBotDetected = "bot_detected"
	KindGeoAnomaly  = "geo_anomaly"
)

// Event is an immutable fact from the audit log.
type Event struct {
	ID        int64                  `json:"id"`
	Kind      string                 `json:"kind"`
	ActorID   string                 `json:"actor_id"`
	Target    string                 `json:"target"`
	IPAddress string                 `json:"ip_address"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt time.Time              `json:"created_at"`
}

type Filter struct {
	Kinds   []string
	ActorID string
	Targets []string
	Since   time.Time
	Until   time.Time
	Limit   int
}
