package simconnect

import (
	"context"
	goerrs "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sessamekesh/simconnect-bridge/internal/fakehost"
	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testPollInterval = 5 * time.Millisecond
	eventually       = 2 * time.Second
	tick             = time.Millisecond
)

type airData struct {
	Airspeed float32 `simvar:"Airspeed Indicated" unit:"knots"`
	Altitude float32 `simvar:"Indicated Altitude" unit:"feet"`
}

type position struct {
	Latitude  float64 `simvar:"Plane Latitude" unit:"degrees"`
	Longitude float64 `simvar:"Plane Longitude" unit:"degrees"`
}

type aircraft struct {
	Title  string `simvar:"Title"`
	OnRamp int32  `simvar:"Sim On Ground" unit:"bool"`
}

func openTestClient(t *testing.T, host *fakehost.Host, reg prometheus.Registerer) *Client {
	t.Helper()
	c, err := Open(context.Background(), Config{
		ProgramName:  "TestProgram",
		Library:      host,
		PollInterval: testPollInterval,
		Logger:       zaptest.NewLogger(t),
		Registerer:   reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func airRecord(t *testing.T, defineId uint32, v airData) []byte {
	t.Helper()
	payload, err := wire.Encode(v)
	require.NoError(t, err)
	return fakehost.ObjectDataRecord(defineId, defineId, payload)
}

func TestOpenPassesProgramName(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	assert.Equal(t, "TestProgram", host.OpenedName())
	require.Eventually(t, func() bool { return c.HostInfo() != nil }, eventually, tick)
	assert.Equal(t, "KittyHawk", c.HostInfo().ApplicationName)
	assert.Equal(t, "11.0.0", c.HostInfo().ApplicationVersion.String())
}

func TestOpenFailure(t *testing.T) {
	host := fakehost.New()
	host.Fail("Open", fakehost.HrFail)

	_, err := Open(context.Background(), Config{ProgramName: "TestProgram", Library: host, Logger: zaptest.NewLogger(t)})

	var connErr *errors.ConnectionFailed
	require.ErrorAs(t, err, &connErr)
	var hostErr *errors.HostCallFailed
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, fakehost.HrFail, hostErr.Code)
}

func TestOpenRequiresProgramName(t *testing.T) {
	_, err := Open(context.Background(), Config{Library: fakehost.New(), Logger: zaptest.NewLogger(t)})
	assert.ErrorIs(t, err, ErrEmptyProgramName)
}

func TestRegisterStructAssignsDenseIds(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	airId, err := RegisterStruct[airData](c)
	require.NoError(t, err)
	posId, err := RegisterStruct[position](c)
	require.NoError(t, err)
	acId, err := RegisterStruct[aircraft](c)
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 1, 2}, []uint32{airId, posId, acId})

	again, err := RegisterStruct[position](c)
	require.NoError(t, err)
	assert.Equal(t, posId, again)
	assert.Equal(t, 3, host.DefinitionCount())

	assert.Equal(t, []fakehost.Datum{
		{DatumId: 0, Name: "Airspeed Indicated", Unit: "knots", DataType: wire.DataType_Float32},
		{DatumId: 1, Name: "Indicated Altitude", Unit: "feet", DataType: wire.DataType_Float32},
	}, host.Definitions(airId))
	assert.Equal(t, []fakehost.Datum{
		{DatumId: 0, Name: "Title", Unit: "", DataType: wire.DataType_StringV},
		{DatumId: 1, Name: "Sim On Ground", Unit: "bool", DataType: wire.DataType_Int32},
	}, host.Definitions(acId))
}

func TestRegisterStructDeclarationFailure(t *testing.T) {
	host := fakehost.New()
	host.Fail("AddToDataDefinition", fakehost.HrFail)
	c := openTestClient(t, host, nil)

	_, err := RegisterStruct[airData](c)
	var hostErr *errors.HostCallFailed
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "AddToDataDefinition", hostErr.Call)

	_, again := RegisterStruct[airData](c)
	assert.Equal(t, err, again)
	assert.False(t, HasData[airData](c))
}

func TestRegisterStructRejectsUnsupportedFields(t *testing.T) {
	type bad struct {
		Flag bool `simvar:"Sim On Ground"`
	}
	c := openTestClient(t, fakehost.New(), nil)

	_, err := RegisterStruct[bad](c)
	var unsupported *errors.UnsupportedFieldType
	assert.ErrorAs(t, err, &unsupported)
}

func TestHasDataBeforeAndAfterRouting(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	id, err := RegisterStruct[airData](c)
	require.NoError(t, err)
	assert.False(t, HasData[airData](c))

	host.Push(airRecord(t, id, airData{Airspeed: 1, Altitude: 32}))
	require.Eventually(t, func() bool { return HasData[airData](c) }, eventually, tick)

	got, err := Next[airData](context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, airData{Airspeed: 1, Altitude: 32}, got)
	assert.False(t, HasData[airData](c))
}

func TestNextPreservesHostOrder(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	id, err := RegisterStruct[airData](c)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		host.Push(airRecord(t, id, airData{Altitude: float32(i)}))
	}
	for i := 1; i <= 5; i++ {
		got, err := Next[airData](context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, float32(i), got.Altitude)
	}
}

func TestRequestLatestKeepsNewest(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	id, err := RegisterStruct[airData](c)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		host.Push(airRecord(t, id, airData{Altitude: float32(i * 1000)}))
	}
	require.Eventually(t, func() bool { return Pending[airData](c) == 3 }, eventually, tick)

	got, err := RequestLatest[airData](context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, float32(3000), got.Altitude)
	assert.Equal(t, 0, Pending[airData](c))

	requests := host.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, id, requests[0].DefineId)
	assert.Equal(t, PeriodOnce, requests[0].Period)
}

func TestRequestLatestWaitsForReply(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	id, err := RegisterStruct[airData](c)
	require.NoError(t, err)
	host.OnRequestData(func(req fakehost.DataRequest) [][]byte {
		return [][]byte{airRecord(t, req.DefineId, airData{Airspeed: 110, Altitude: 4500})}
	})

	got, err := RequestLatest[airData](context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, airData{Airspeed: 110, Altitude: 4500}, got)
	assert.Equal(t, id, host.Requests()[0].RequestId)
}

func TestRequestLatestHonoursContext(t *testing.T) {
	c := openTestClient(t, fakehost.New(), nil)
	_, err := RegisterStruct[airData](c)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = RequestLatest[airData](ctx, c)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestDataPeriodic(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)
	_, err := RegisterStruct[position](c)
	require.NoError(t, err)

	require.NoError(t, RequestData[position](c, PeriodSecond))
	require.NoError(t, RequestData[position](c, PeriodNever))

	requests := host.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, PeriodSecond, requests[0].Period)
	assert.Equal(t, PeriodNever, requests[1].Period)
}

func TestUnregisteredType(t *testing.T) {
	c := openTestClient(t, fakehost.New(), nil)

	_, err := RequestLatest[position](context.Background(), c)
	var notRegistered *errors.NotRegistered
	require.ErrorAs(t, err, &notRegistered)
	assert.Contains(t, notRegistered.Identity, "TestProgram::")

	assert.False(t, HasData[position](c))
	assert.ErrorAs(t, RequestData[position](c, PeriodOnce), &notRegistered)
}

func TestUnclaimedObjectDataIsDropped(t *testing.T) {
	host := fakehost.New()
	reg := prometheus.NewRegistry()
	c := openTestClient(t, host, reg)

	id, err := RegisterStruct[airData](c)
	require.NoError(t, err)

	host.Push(airRecord(t, 42, airData{Altitude: 1}), airRecord(t, id, airData{Altitude: 2}))

	got, err := Next[airData](context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, float32(2), got.Altitude)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.metrics.dropped))
}

func TestDecodeErrorDoesNotStopLoop(t *testing.T) {
	host := fakehost.New()
	reg := prometheus.NewRegistry()
	c := openTestClient(t, host, reg)

	id, err := RegisterStruct[airData](c)
	require.NoError(t, err)

	host.Push(
		fakehost.EventRecord(recv.SystemEvent_View, 3),
		fakehost.ObjectDataRecord(id, id, []byte{1, 2}),
		airRecord(t, id, airData{Altitude: 7}),
	)

	got, err := Next[airData](context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, float32(7), got.Altitude)
	assert.Equal(t, float64(2), testutil.ToFloat64(c.metrics.decodeErrors))
	assert.NoError(t, c.Err())
}

func TestSubscribeEvent(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	events := make(chan *recv.SystemEventData, 4)
	require.NoError(t, c.SubscribeEvent(recv.SystemEvent_Pause, EventHandlerFunc(func(ev *recv.SystemEventData) {
		events <- ev
	})))
	assert.Equal(t, map[uint32]string{uint32(recv.SystemEvent_Pause): "Pause"}, host.Subscriptions())

	host.Push(fakehost.EventRecord(recv.SystemEvent_Pause, 1))

	select {
	case ev := <-events:
		assert.Equal(t, recv.SystemEvent_Pause, ev.Event)
		assert.Equal(t, recv.State(true), ev.Payload)
	case <-time.After(eventually):
		t.Fatal("pause event was never delivered")
	}
}

func TestSubscribeEventReplacesHandler(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	var first, second atomic.Int32
	require.NoError(t, c.SubscribeEvent(recv.SystemEvent_SixHz, EventHandlerFunc(func(*recv.SystemEventData) { first.Add(1) })))
	require.NoError(t, c.SubscribeEvent(recv.SystemEvent_SixHz, EventHandlerFunc(func(*recv.SystemEventData) { second.Add(1) })))

	assert.Equal(t, 1, host.SubscribeCalls())
	assert.Equal(t, "6Hz", host.Subscriptions()[uint32(recv.SystemEvent_SixHz)])

	host.Push(fakehost.EventRecord(recv.SystemEvent_SixHz, 0))
	require.Eventually(t, func() bool { return second.Load() == 1 }, eventually, tick)
	assert.Equal(t, int32(0), first.Load())
}

func TestUnsubscribeEvent(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	var calls atomic.Int32
	require.NoError(t, c.SubscribeEvent(recv.SystemEvent_Sim, EventHandlerFunc(func(*recv.SystemEventData) { calls.Add(1) })))
	require.NoError(t, c.UnsubscribeEvent(recv.SystemEvent_Sim))
	assert.Empty(t, host.Subscriptions())

	host.Push(fakehost.EventRecord(recv.SystemEvent_Sim, 1))
	require.Eventually(t, func() bool { return host.Pending() == 0 }, eventually, tick)
	time.Sleep(4 * testPollInterval)
	assert.Equal(t, int32(0), calls.Load())

	assert.NoError(t, c.UnsubscribeEvent(recv.SystemEvent_Sim))
	assert.NoError(t, c.UnsubscribeEvent(recv.SystemEvent_View))
}

func TestSubscribeEventFailure(t *testing.T) {
	host := fakehost.New()
	host.Fail("SubscribeToSystemEvent", fakehost.HrFail)
	c := openTestClient(t, host, nil)

	err := c.SubscribeEvent(recv.SystemEvent_Crashed, EventHandlerFunc(func(*recv.SystemEventData) {}))
	var hostErr *errors.HostCallFailed
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, fakehost.HrFail, hostErr.Code)

	err = c.SubscribeEvent(recv.SystemEvent(99), EventHandlerFunc(func(*recv.SystemEventData) {}))
	var enumErr *errors.InvalidEnumValue
	assert.ErrorAs(t, err, &enumErr)
}

func TestRequestSystemState(t *testing.T) {
	host := fakehost.New()
	host.OnRequestSystemState(func(kind recv.SimStateArgs) [][]byte {
		if kind.IsBool() {
			return [][]byte{fakehost.SystemStateRecord(kind, 1, "")}
		}
		return [][]byte{fakehost.SystemStateRecord(kind, 0, `SimObjects\Airplanes\C172\aircraft.cfg`)}
	})
	c := openTestClient(t, host, nil)

	state, err := c.RequestSystemState(context.Background(), recv.SimStateArgs_AircraftLoaded)
	require.NoError(t, err)
	assert.Equal(t, `SimObjects\Airplanes\C172\aircraft.cfg`, state.Path)

	state, err = c.RequestSystemState(context.Background(), recv.SimStateArgs_Sim)
	require.NoError(t, err)
	assert.True(t, state.Enabled)

	assert.Equal(t, []recv.SimStateArgs{recv.SimStateArgs_AircraftLoaded, recv.SimStateArgs_Sim}, host.StateRequests())
}

func TestRequestSystemStateHostFailure(t *testing.T) {
	host := fakehost.New()
	host.Fail("RequestSystemState", fakehost.HrFail)
	c := openTestClient(t, host, nil)

	_, err := c.RequestSystemState(context.Background(), recv.SimStateArgs_FlightLoaded)
	var hostErr *errors.HostCallFailed
	assert.ErrorAs(t, err, &hostErr)
}

func TestCloseDuringSleep(t *testing.T) {
	const interval = 300 * time.Millisecond

	host := fakehost.New()
	c, err := Open(context.Background(), Config{
		ProgramName:  "TestProgram",
		Library:      host,
		PollInterval: interval,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	// First poll returns the Open record, the second finds the queue empty
	// and puts the loop to sleep.
	require.Eventually(t, func() bool { return host.PollCount() >= 2 }, eventually, tick)

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), interval)

	calls := host.CallCount()
	time.Sleep(2 * testPollInterval)
	assert.Equal(t, calls, host.CallCount())
	assert.Equal(t, 1, host.CloseCount())
}

func TestCloseUnblocksWaiters(t *testing.T) {
	c, err := Open(context.Background(), Config{
		ProgramName:  "TestProgram",
		Library:      fakehost.New(),
		PollInterval: testPollInterval,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	_, err = RegisterStruct[airData](c)
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := RequestLatest[airData](context.Background(), c)
		result <- err
	}()

	time.Sleep(4 * testPollInterval)
	require.NoError(t, c.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errors.ErrChannelClosed)
	case <-time.After(eventually):
		t.Fatal("RequestLatest did not return after Close")
	}
}

func TestCallsAfterClose(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)
	_, err := RegisterStruct[airData](c)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, host.CloseCount())

	_, err = RequestLatest[airData](context.Background(), c)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
	_, err = RegisterStruct[position](c)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
	_, err = c.RequestSystemState(context.Background(), recv.SimStateArgs_Sim)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
	assert.ErrorIs(t, c.SubscribeEvent(recv.SystemEvent_Pause, EventHandlerFunc(func(*recv.SystemEventData) {})), errors.ErrChannelClosed)
}

func TestQuitEndsSession(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	host.Push(fakehost.QuitRecord())

	select {
	case <-c.Done():
	case <-time.After(eventually):
		t.Fatal("dispatch loop kept running after Quit")
	}
	assert.True(t, c.SessionEnded())
	assert.NoError(t, c.Err())

	_, err := c.RequestSystemState(context.Background(), recv.SimStateArgs_Sim)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)

	require.NoError(t, c.Close())
	assert.Equal(t, 1, host.CloseCount())
}

func TestHandlerPanicEndsLoop(t *testing.T) {
	host := fakehost.New()
	c, err := Open(context.Background(), Config{
		ProgramName:  "TestProgram",
		Library:      host,
		PollInterval: testPollInterval,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, c.SubscribeEvent(recv.SystemEvent_Crashed, EventHandlerFunc(func(*recv.SystemEventData) {
		panic("handler exploded")
	})))
	host.Push(fakehost.EventRecord(recv.SystemEvent_Crashed, 0))

	select {
	case <-c.Done():
	case <-time.After(eventually):
		t.Fatal("dispatch loop survived a handler panic")
	}
	require.Error(t, c.Err())

	closeErr := c.Close()
	require.Error(t, closeErr)
	assert.Contains(t, closeErr.Error(), "handler exploded")
	assert.Equal(t, 1, host.CloseCount())
}

func TestBrokenConnectionEndsLoop(t *testing.T) {
	host := fakehost.New()
	c, err := Open(context.Background(), Config{
		ProgramName:  "TestProgram",
		Library:      host,
		PollInterval: testPollInterval,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	host.Fail("GetNextDispatch", fakehost.HrBrokenPipe)

	select {
	case <-c.Done():
	case <-time.After(eventually):
		t.Fatal("dispatch loop kept polling a broken connection")
	}

	var hostErr *errors.HostCallFailed
	require.ErrorAs(t, c.Err(), &hostErr)
	assert.Equal(t, "GetNextDispatch", hostErr.Call)
	assert.Equal(t, fakehost.HrBrokenPipe, hostErr.Code)
	assert.False(t, c.SessionEnded())

	closeErr := c.Close()
	assert.ErrorAs(t, closeErr, &hostErr)
	assert.Equal(t, 1, host.CloseCount())
}

func TestCloseUnblocksHandlerWaitingOnLoop(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)

	entered := make(chan struct{})
	handlerErr := make(chan error, 1)
	require.NoError(t, c.SubscribeEvent(recv.SystemEvent_Pause, EventHandlerFunc(func(*recv.SystemEventData) {
		close(entered)
		_, err := c.RequestSystemState(context.Background(), recv.SimStateArgs_Sim)
		handlerErr <- err
	})))
	host.Push(fakehost.EventRecord(recv.SystemEvent_Pause, 1))

	select {
	case <-entered:
	case <-time.After(eventually):
		t.Fatal("event handler never ran")
	}

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("Close blocked behind a handler waiting on the dispatch loop")
	}
	assert.ErrorIs(t, <-handlerErr, errors.ErrChannelClosed)
	assert.Equal(t, 1, host.CloseCount())
}

func TestCloseReportsHostCloseFailure(t *testing.T) {
	host := fakehost.New()
	c := openTestClient(t, host, nil)
	host.Fail("Close", fakehost.HrFail)

	err := c.Close()
	var hostErr *errors.HostCallFailed
	require.True(t, goerrs.As(err, &hostErr))
	assert.Equal(t, "Close", hostErr.Call)
}

func TestMetricsReuseRegistrations(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := openTestClient(t, fakehost.New(), reg)
	second := openTestClient(t, fakehost.New(), reg)

	assert.Same(t, first.metrics.decodeErrors, second.metrics.decodeErrors)
}
