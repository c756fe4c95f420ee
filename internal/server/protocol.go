package server

import (
	"encoding/json"

	"github.com/zeusync/ballistics/internal/core/aiming"
	"github.com/zeusync/ballistics/internal/core/systems/physics"
)

// MessageType names the operation carried by an Envelope.
type MessageType string

const (
	TypeAim      MessageType = "aim"
	TypeAimBatch MessageType = "aim_batch"
	TypeScatter  MessageType = "scatter"
	TypeStats    MessageType = "stats"
	TypeError    MessageType = "error"
)

// Envelope is the message frame on every transport. Replies echo the request ID and type;
// failures come back with Type "error" and Error set.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type ScatterRequest struct {
	Origin physics.Vec3 `json:"origin"`
	Angle  float64      `json:"angle"`
}

type ScatterResponse struct {
	Direction physics.Vec3 `json:"direction"`
}

type BatchRequest struct {
	Requests []aiming.Request `json:"requests"`
}

type BatchResponse struct {
	Responses []aiming.Response `json:"responses"`
}

// Stats contains server statistics
type Stats struct {
	ClientCount   int64             `json:"client_count"`
	MessagesTotal uint64            `json:"messages_total"`
	Running       bool              `json:"running"`
	Cache         aiming.CacheStats `json:"cache"`
}
