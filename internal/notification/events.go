package notification

import (
	"time"

	"github.com/helmarr/helmarr/internal/router"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// GateEvents adapts the service to the gate's notifier contract.
type GateEvents struct {
	svc *Service
}

func NewGateEvents(svc *Service) *GateEvents {
	return &GateEvents{svc: svc}
}

func (g *GateEvents) OnApprovalCreated(req *store.ApprovalRequest) {
	g.svc.Dispatch(EventApprovalCreated, approvalEvent(req))
}

func (g *GateEvents) OnApprovalResolved(req *store.ApprovalRequest) {
	g.svc.Dispatch(EventApprovalResolved, approvalEvent(req))
}

func (g *GateEvents) OnItemDispatched(item watchlist.Item, decisions []router.Decision) {
	event := DispatchEvent{
		Title:       item.Title,
		ContentType: string(item.Type),
		UserID:      item.OwnerUserID,
		At:          time.Now().UTC(),
	}
	for _, d := range decisions {
		event.Instances = append(event.Instances, string(d.TargetType))
	}
	g.svc.Dispatch(EventDispatch, event)
}

// OnDispatchFailed reports a failed fan-out for one item.
func (g *GateEvents) OnDispatchFailed(item watchlist.Item, cause error) {
	g.svc.Dispatch(EventDispatchFailed, DispatchEvent{
		Title:       item.Title,
		ContentType: string(item.Type),
		UserID:      item.OwnerUserID,
		Error:       cause.Error(),
		At:          time.Now().UTC(),
	})
}

func approvalEvent(req *store.ApprovalRequest) ApprovalEvent {
	return ApprovalEvent{
		RequestID:   req.ID,
		Title:       req.Title,
		ContentType: string(req.ContentType),
		UserID:      req.UserID,
		TriggeredBy: req.TriggeredBy,
		Status:      req.Status,
		At:          time.Now().UTC(),
	}
}
