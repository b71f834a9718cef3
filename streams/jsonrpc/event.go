// Package jsonrpc holds the wire contract of the state stream shared by the server and
// its clients.
package jsonrpc

import "encoding/json"

const (
	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                  = "dmm"
	StateStreamSubscriptionMethod = "subscribeStateStream"
)

// Event types.
const (
	EventFull = "full"
	EventDiff = "diff"
)

// SubscriptionEvent is the wrapper object sent for every state update. Payload is an
// engine.State for EventFull and a differ.StateDiff for EventDiff.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}
