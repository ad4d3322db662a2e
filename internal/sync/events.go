package sync

// WebSocket event types broadcast during sync cycles.
const (
	EventStarted       = "sync:started"
	EventCompleted     = "sync:completed"
	EventFailed        = "sync:failed"
	EventItemRouted    = "sync:item-routed"
	EventItemDeferred  = "sync:item-deferred"
	EventItemRemoved   = "sync:item-removed"
	EventQueueDrained  = "sync:queue-drained"
	EventApprovalEvent = "approval:changed"
)

// StartedEvent is broadcast when a manual sync begins.
type StartedEvent struct {
	Feeds int `json:"feeds"`
}

// CompletedEvent is broadcast when a manual sync finishes.
type CompletedEvent struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	ElapsedMs int `json:"elapsed"`
}

// FailedEvent is broadcast when a manual sync aborts.
type FailedEvent struct {
	Error string `json:"error"`
}

// ItemEvent describes one routed, deferred, or removed item.
type ItemEvent struct {
	Title       string `json:"title"`
	ContentType string `json:"contentType"`
	UserID      int64  `json:"userId"`
	Outcome     string `json:"outcome,omitempty"`
}
