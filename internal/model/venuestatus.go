package model

import "time"

// ConnStatus is the connection state shared by REST, WS, and overall
// venue connection status.
type ConnStatus string

const (
	ConnConnected    ConnStatus = "connected"
	ConnDisconnected ConnStatus = "disconnected"
	ConnConnecting   ConnStatus = "connecting"
	ConnReconnecting ConnStatus = "reconnecting"
	ConnError        ConnStatus = "error"
)

// VenueStatus is the canonical per-venue health record.
type VenueStatus struct {
	Venue            Venue
	ConnectionStatus ConnStatus
	APIStatus        ConnStatus
	WSStatus         ConnStatus
	LatencyMS        int64
	SuccessRate      float64
	LastError        string
	ErrorCount       int64
	LastCheck        time.Time
	LastSuccess      time.Time
}

// Healthy reports whether the venue is usable for routing: connected
// and not in an error state.
func (v *VenueStatus) Healthy() bool {
	return v.ConnectionStatus == ConnConnected
}
