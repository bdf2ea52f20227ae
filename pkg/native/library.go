package native

import (
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// RawHandle is the opaque HANDLE returned by the host on open.
type RawHandle uintptr

// Period controls how often the host sends data for a subscription.
type Period uint32

const (
	Period_Never Period = iota
	Period_Once
	Period_VisualFrame
	Period_SimFrame
	Period_Second
)

func (p Period) String() string {
	switch p {
	case Period_Never:
		return "Never"
	case Period_Once:
		return "Once"
	case Period_VisualFrame:
		return "VisualFrame"
	case Period_SimFrame:
		return "SimFrame"
	case Period_Second:
		return "Second"
	}
	return "Unknown"
}

const (
	ObjectId_User uint32 = 0
	Unused        uint32 = 0xFFFFFFFF
)

// HResult_Fail is E_FAIL. GetNextDispatch returns it when nothing is queued.
const HResult_Fail int32 = -2147467259

// Library is the native call boundary. Every method maps onto one exported
// host function and returns its raw HRESULT, zero meaning success.
//
// Name arguments are NUL-terminated byte strings as produced by
// wire.EncodeName. An empty slice means "no value".
type Library interface {
	Open(name []byte) (RawHandle, int32)
	Close(h RawHandle) int32

	AddToDataDefinition(h RawHandle, defineId uint32, datumName, unitsName []byte, datumType wire.DataType, datumId uint32) int32
	RequestDataOnSimObject(h RawHandle, requestId, defineId, objectId uint32, period Period) int32

	// GetNextDispatch returns a copy of the next queued record. HResult_Fail
	// means the queue was empty; any other non-zero status is a broken
	// connection.
	GetNextDispatch(h RawHandle) ([]byte, int32)

	SubscribeToSystemEvent(h RawHandle, eventId uint32, eventName []byte) int32
	UnsubscribeFromSystemEvent(h RawHandle, eventId uint32) int32
	RequestSystemState(h RawHandle, requestId uint32, state []byte) int32
}
