// Package types defines the notifier capability interface and event payloads
// shared by all notifier implementations.
package types

import (
	"context"
	"time"
)

// NotifierType identifies a notifier implementation.
type NotifierType string

const (
	NotifierDiscord NotifierType = "discord"
	NotifierWebhook NotifierType = "webhook"
)

// EventType identifies which pipeline event a payload describes.
type EventType string

const (
	EventDispatch         EventType = "dispatch"
	EventDispatchFailed   EventType = "dispatchFailed"
	EventApprovalCreated  EventType = "approvalCreated"
	EventApprovalResolved EventType = "approvalResolved"
	EventHealthIssue      EventType = "healthIssue"
	EventHealthRestored   EventType = "healthRestored"
)

// DispatchEvent describes an item sent to (or refused by) downstream managers.
type DispatchEvent struct {
	Title       string    `json:"title"`
	ContentType string    `json:"contentType"`
	UserID      int64     `json:"userId"`
	UserName    string    `json:"userName,omitempty"`
	Instances   []string  `json:"instances,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// ApprovalEvent describes an approval request transition.
type ApprovalEvent struct {
	RequestID   string    `json:"requestId"`
	Title       string    `json:"title"`
	ContentType string    `json:"contentType"`
	UserID      int64     `json:"userId"`
	TriggeredBy string    `json:"triggeredBy"`
	Status      string    `json:"status"`
	At          time.Time `json:"at"`
}

// HealthEvent describes a health-state transition.
type HealthEvent struct {
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is one configured notification target.
type Notifier interface {
	Type() NotifierType
	Name() string
	Test(ctx context.Context) error
	OnDispatch(ctx context.Context, event DispatchEvent) error
	OnDispatchFailed(ctx context.Context, event DispatchEvent) error
	OnApprovalCreated(ctx context.Context, event ApprovalEvent) error
	OnApprovalResolved(ctx context.Context, event ApprovalEvent) error
	OnHealthIssue(ctx context.Context, event HealthEvent) error
	OnHealthRestored(ctx context.Context, event HealthEvent) error
}
