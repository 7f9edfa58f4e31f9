// Package events defines the dispatched event and its publishers.
package events

// DispatchedEvent is emitted once per dispatch, after the response envelope
// has been built.
type DispatchedEvent struct {
	RequestID  string `json:"requestId,omitempty"`
	Generation string `json:"generation"`
	Entity     string `json:"entity"`
	Action     string `json:"action"`
	Method     string `json:"method"`
	EntityID   string `json:"entityId,omitempty"`
	Code       int    `json:"code"`
	// FailedStage is "prepare", "validate" or "process"; empty on success.
	FailedStage string `json:"failedStage,omitempty"`
	DurationMs  int64  `json:"durationMs"`
	Timestamp   string `json:"timestamp"`
}
