// Package fakehost is a scripted in-memory stand-in for the vendor client
// library. Tests queue records on it and inspect the native calls it saw.
package fakehost

import (
	"sync"
	"sync/atomic"

	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/native"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// HrFail is E_FAIL, the status the fake host returns for scripted failures
// and for polls against an empty queue.
const HrFail = native.HResult_Fail

// HrBrokenPipe is STATUS_PIPE_BROKEN, returned once the simulator has gone
// away without sending Quit.
const HrBrokenPipe int32 = -1073741493

type Datum struct {
	DatumId  uint32
	Name     string
	Unit     string
	DataType wire.DataType
}

type DataRequest struct {
	RequestId uint32
	DefineId  uint32
	ObjectId  uint32
	Period    native.Period
}

type Host struct {
	AppName string

	mut sync.Mutex

	opened      bool
	closeCount  int
	openedName  string
	queue       [][]byte
	failures    map[string]int32
	definitions map[uint32][]Datum
	requests    []DataRequest
	subscribed  map[uint32]string
	subCalls    int
	stateCalls  []recv.SimStateArgs

	onRequestData  func(req DataRequest) [][]byte
	onRequestState func(kind recv.SimStateArgs) [][]byte
	onPoll         func()

	pollCount atomic.Int64
	callCount atomic.Int64
}

var _ native.Library = (*Host)(nil)

func New() *Host {
	return &Host{
		AppName:     "KittyHawk",
		failures:    make(map[string]int32),
		definitions: make(map[uint32][]Datum),
		subscribed:  make(map[uint32]string),
	}
}

// Push appends records to the dispatch queue.
func (h *Host) Push(records ...[]byte) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.queue = append(h.queue, records...)
}

// Fail makes every later call with the given name return hr. Names match the
// native.Library method names.
func (h *Host) Fail(call string, hr int32) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.failures[call] = hr
}

// OnRequestData installs a responder whose records are queued whenever data
// is requested.
func (h *Host) OnRequestData(fn func(req DataRequest) [][]byte) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.onRequestData = fn
}

func (h *Host) OnRequestSystemState(fn func(kind recv.SimStateArgs) [][]byte) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.onRequestState = fn
}

// OnPoll runs fn at the start of every GetNextDispatch, outside the host lock.
func (h *Host) OnPoll(fn func()) {
	h.mut.Lock()
	defer h.mut.Unlock()
	h.onPoll = fn
}

func (h *Host) PollCount() int64 {
	return h.pollCount.Load()
}

// CallCount counts every native call, polls included.
func (h *Host) CallCount() int64 {
	return h.callCount.Load()
}

func (h *Host) Pending() int {
	h.mut.Lock()
	defer h.mut.Unlock()
	return len(h.queue)
}

func (h *Host) OpenedName() string {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.openedName
}

func (h *Host) CloseCount() int {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.closeCount
}

func (h *Host) Definitions(defineId uint32) []Datum {
	h.mut.Lock()
	defer h.mut.Unlock()
	return append([]Datum(nil), h.definitions[defineId]...)
}

func (h *Host) DefinitionCount() int {
	h.mut.Lock()
	defer h.mut.Unlock()
	return len(h.definitions)
}

func (h *Host) Requests() []DataRequest {
	h.mut.Lock()
	defer h.mut.Unlock()
	return append([]DataRequest(nil), h.requests...)
}

// Subscriptions maps client event ids to the event names they were
// subscribed with.
func (h *Host) Subscriptions() map[uint32]string {
	h.mut.Lock()
	defer h.mut.Unlock()
	out := make(map[uint32]string, len(h.subscribed))
	for k, v := range h.subscribed {
		out[k] = v
	}
	return out
}

// SubscribeCalls counts successful SubscribeToSystemEvent calls.
func (h *Host) SubscribeCalls() int {
	h.mut.Lock()
	defer h.mut.Unlock()
	return h.subCalls
}

func (h *Host) StateRequests() []recv.SimStateArgs {
	h.mut.Lock()
	defer h.mut.Unlock()
	return append([]recv.SimStateArgs(nil), h.stateCalls...)
}

func (h *Host) failure(call string) int32 {
	h.callCount.Add(1)
	return h.failures[call]
}

func (h *Host) Open(name []byte) (native.RawHandle, int32) {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("Open"); hr != 0 {
		return 0, hr
	}
	h.opened = true
	h.openedName = wire.DecodeName(name)
	h.queue = append(h.queue, OpenRecord(h.AppName, VersionPair{11, 0}, VersionPair{282174, 999}, VersionPair{11, 0}, VersionPair{62651, 3}))
	return native.RawHandle(0x5C), 0
}

func (h *Host) Close(raw native.RawHandle) int32 {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("Close"); hr != 0 {
		return hr
	}
	h.opened = false
	h.closeCount++
	return 0
}

func (h *Host) AddToDataDefinition(raw native.RawHandle, defineId uint32, datumName, unitsName []byte, datumType wire.DataType, datumId uint32) int32 {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("AddToDataDefinition"); hr != 0 {
		return hr
	}
	h.definitions[defineId] = append(h.definitions[defineId], Datum{
		DatumId:  datumId,
		Name:     wire.DecodeName(datumName),
		Unit:     wire.DecodeName(unitsName),
		DataType: datumType,
	})
	return 0
}

func (h *Host) RequestDataOnSimObject(raw native.RawHandle, requestId, defineId, objectId uint32, period native.Period) int32 {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("RequestDataOnSimObject"); hr != 0 {
		return hr
	}
	req := DataRequest{RequestId: requestId, DefineId: defineId, ObjectId: objectId, Period: period}
	h.requests = append(h.requests, req)
	if h.onRequestData != nil {
		h.queue = append(h.queue, h.onRequestData(req)...)
	}
	return 0
}

func (h *Host) GetNextDispatch(raw native.RawHandle) ([]byte, int32) {
	h.pollCount.Add(1)

	h.mut.Lock()
	onPoll := h.onPoll
	h.mut.Unlock()
	if onPoll != nil {
		onPoll()
	}

	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("GetNextDispatch"); hr != 0 {
		return nil, hr
	}
	if len(h.queue) == 0 {
		return nil, HrFail
	}
	next := h.queue[0]
	h.queue = h.queue[1:]
	return next, 0
}

func (h *Host) SubscribeToSystemEvent(raw native.RawHandle, eventId uint32, eventName []byte) int32 {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("SubscribeToSystemEvent"); hr != 0 {
		return hr
	}
	h.subCalls++
	h.subscribed[eventId] = wire.DecodeName(eventName)
	return 0
}

func (h *Host) UnsubscribeFromSystemEvent(raw native.RawHandle, eventId uint32) int32 {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("UnsubscribeFromSystemEvent"); hr != 0 {
		return hr
	}
	delete(h.subscribed, eventId)
	return 0
}

func (h *Host) RequestSystemState(raw native.RawHandle, requestId uint32, state []byte) int32 {
	h.mut.Lock()
	defer h.mut.Unlock()

	if hr := h.failure("RequestSystemState"); hr != 0 {
		return hr
	}
	kind := recv.SimStateArgs(requestId)
	h.stateCalls = append(h.stateCalls, kind)
	if h.onRequestState != nil {
		h.queue = append(h.queue, h.onRequestState(kind)...)
	}
	return 0
}
