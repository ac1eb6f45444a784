package ws

const (
	// client -> server
	MsgPing = "ping"

	// server -> client
	MsgReady = "ready"
	MsgPong  = "pong"
	MsgError = "error"
)

type inbound struct {
	Type string `json:"type"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
