package simconnect

import (
	"context"
	"testing"

	"github.com/sessamekesh/simconnect-bridge/internal/fakehost"
	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDispatcher(t *testing.T) *dispatcher {
	return &dispatcher{
		log:      zaptest.NewLogger(t),
		sinks:    make(map[uint32]sink),
		handlers: make(map[recv.SystemEvent]EventHandler),
		waiters:  make(map[recv.SimStateArgs][]stateWaiterAnnouncement),
	}
}

func TestRouteSystemStateSkipsAbandonedWaiters(t *testing.T) {
	d := newTestDispatcher(t)

	abandonedCtx, cancel := context.WithCancel(context.Background())
	cancel()
	abandoned := make(chan stateReply, 1)
	live := make(chan stateReply, 1)

	d.apply(stateWaiterAnnouncement{Ctx: abandonedCtx, Kind: recv.SimStateArgs_FlightPlan, Reply: abandoned})
	d.apply(stateWaiterAnnouncement{Ctx: context.Background(), Kind: recv.SimStateArgs_FlightPlan, Reply: live})

	quit := d.route(fakehost.SystemStateRecord(recv.SimStateArgs_FlightPlan, 0, "plan.pln"))
	assert.False(t, quit)

	require.Len(t, live, 1)
	reply := <-live
	assert.Equal(t, "plan.pln", reply.State.Path)
	assert.Len(t, abandoned, 0)
	assert.Empty(t, d.waiters[recv.SimStateArgs_FlightPlan])
}

func TestRouteSystemStateMatchesKind(t *testing.T) {
	d := newTestDispatcher(t)

	simWaiter := make(chan stateReply, 1)
	d.apply(stateWaiterAnnouncement{Ctx: context.Background(), Kind: recv.SimStateArgs_Sim, Reply: simWaiter})

	d.route(fakehost.SystemStateRecord(recv.SimStateArgs_DialogMode, 1, ""))
	assert.Len(t, simWaiter, 0)

	d.route(fakehost.SystemStateRecord(recv.SimStateArgs_Sim, 1, ""))
	require.Len(t, simWaiter, 1)
	assert.True(t, (<-simWaiter).State.Enabled)
}

func TestShutdownFailsPendingWaiters(t *testing.T) {
	announcements := make(chan announcement, 4)
	d := newTestDispatcher(t)
	d.announcements = announcements

	applied := make(chan stateReply, 1)
	queued := make(chan stateReply, 1)
	d.apply(stateWaiterAnnouncement{Ctx: context.Background(), Kind: recv.SimStateArgs_Sim, Reply: applied})
	announcements <- stateWaiterAnnouncement{Ctx: context.Background(), Kind: recv.SimStateArgs_Sim, Reply: queued}

	sinkDelivery := newDelivery[airData](0, nil, make(chan struct{}), nil)
	announcements <- deliveryAnnouncement{DefineId: 0, Sink: sinkDelivery}

	d.shutdown()

	assert.ErrorIs(t, (<-applied).Err, errors.ErrChannelClosed)
	assert.ErrorIs(t, (<-queued).Err, errors.ErrChannelClosed)
	_, err := sinkDelivery.take(context.Background(), false)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
}

func TestRouteQuit(t *testing.T) {
	d := newTestDispatcher(t)
	assert.True(t, d.route(fakehost.QuitRecord()))
	assert.False(t, d.route(fakehost.NullRecord()))
	assert.False(t, d.route(fakehost.ExceptionRecord(3, 1, 0)))
}
