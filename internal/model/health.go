package model

const (
	ServiceStatusConnected = "Connected"
	ServiceReadyMessage    = "RCH Server ready"
	DatabaseLive           = "Database Live"
	DatabaseOffline        = "Database Offline"
)

// HealthStatusReport is the body served by the health endpoint
type HealthStatusReport struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DBStatus string `json:"db_status"`
}
