package simconnect

import (
	"context"

	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
)

// Announcements are the one-way messages the facade sends to the dispatch
// loop. The loop owns every routing table they modify.
type announcement interface {
	announcementName() string
}

type deliveryAnnouncement struct {
	DefineId uint32
	Sink     sink
}

func (deliveryAnnouncement) announcementName() string { return "Delivery" }

// subscribeAnnouncement installs or replaces the handler for one event kind.
type subscribeAnnouncement struct {
	Event   recv.SystemEvent
	Handler EventHandler
}

func (subscribeAnnouncement) announcementName() string { return "Subscribe" }

type unsubscribeAnnouncement struct {
	Event recv.SystemEvent
}

func (unsubscribeAnnouncement) announcementName() string { return "Unsubscribe" }

// stateWaiterAnnouncement queues a caller for the next SystemState reply of
// the given kind. Waiters whose context has ended are skipped.
type stateWaiterAnnouncement struct {
	Ctx   context.Context
	Kind  recv.SimStateArgs
	Reply chan<- stateReply
}

func (stateWaiterAnnouncement) announcementName() string { return "StateWaiter" }

type stateReply struct {
	State *recv.SystemState
	Err   error
}
