package observability

// Routing keys for the chat event exchange.
const (
	RoutingConversations = "chat_events.conversations"
	RoutingMessages      = "chat_events.messages"
	RoutingWSDirectory   = "ws_events.directory"
	RoutingWSStreams     = "ws_events.streams"
)

// EventEnvelope is the wire shape for every message on the events exchange.
// OccurredAt is stamped by the publisher when the emitter leaves it empty.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at,omitempty"`
	Payload    interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
