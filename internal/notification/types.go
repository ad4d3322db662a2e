// Package notification dispatches pipeline events to configured notifiers.
// Dispatch is fire-and-forget: notifier failures are logged, never propagated
// to the caller.
package notification

import (
	"github.com/helmarr/helmarr/internal/notification/types"
)

// Re-export types from the types sub-package
type (
	NotifierType = types.NotifierType
	EventType    = types.EventType
	Notifier     = types.Notifier

	DispatchEvent = types.DispatchEvent
	ApprovalEvent = types.ApprovalEvent
	HealthEvent   = types.HealthEvent
)

// Re-export constants
const (
	NotifierDiscord = types.NotifierDiscord
	NotifierWebhook = types.NotifierWebhook

	EventDispatch         = types.EventDispatch
	EventDispatchFailed   = types.EventDispatchFailed
	EventApprovalCreated  = types.EventApprovalCreated
	EventApprovalResolved = types.EventApprovalResolved
	EventHealthIssue      = types.EventHealthIssue
	EventHealthRestored   = types.EventHealthRestored
)
