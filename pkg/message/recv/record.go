package recv

import (
	"fmt"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// RecordId is the dwID discriminant at the head of every host record.
type RecordId uint32

const (
	RecordId_Null RecordId = iota
	RecordId_Exception
	RecordId_Open
	RecordId_Quit
	RecordId_Event
	RecordId_EventObjectAddRemove
	RecordId_EventFilename
	RecordId_EventFrame
	RecordId_SimObjectData
	RecordId_SimObjectDataByType
	RecordId_WeatherObservation
	RecordId_CloudState
	RecordId_AssignedObjectId
	RecordId_ReservedKey
	RecordId_CustomAction
	RecordId_SystemState
	RecordId_ClientData
	RecordId_EventWeatherMode
	RecordId_AirportList
	RecordId_VorList
	RecordId_NdbList
	RecordId_WaypointList
)

const HeaderSize = 12

// Header is the common SIMCONNECT_RECV prefix.
type Header struct {
	Size    uint32
	Version uint32
	Id      RecordId
}

func readHeader(r *wire.Reader) (Header, error) {
	var h Header
	var err error
	if h.Size, err = r.Uint32(); err != nil {
		return h, err
	}
	if h.Version, err = r.Uint32(); err != nil {
		return h, err
	}
	id, err := r.Uint32()
	h.Id = RecordId(id)
	return h, err
}

// Event is one classified host record. The concrete type is one of *Open,
// *ObjectData, *SystemEventData, *SystemState, *Exception, Quit or Null.
type Event interface {
	RecordName() string
}

type Null struct{}

func (Null) RecordName() string { return "Null" }

type Quit struct{}

func (Quit) RecordName() string { return "Quit" }

// Decode classifies a record and extracts everything the caller needs from
// it. The input is never retained past the call; byte regions that outlive
// the record are copied.
func Decode(record []byte) (Event, error) {
	r := wire.NewReader("Recv", record)
	header, err := readHeader(r)
	if err != nil {
		return nil, &errors.DecodeFailed{RecordName: "Recv", Cause: err}
	}

	switch header.Id {
	case RecordId_Open:
		ev, err := decodeOpen(r)
		return wrap("Open", ev, err)
	case RecordId_SimObjectData, RecordId_SimObjectDataByType:
		ev, err := decodeObjectData(r)
		return wrap("ObjectData", ev, err)
	case RecordId_Event, RecordId_EventFilename, RecordId_EventObjectAddRemove, RecordId_EventFrame:
		ev, err := decodeSystemEvent(r, header.Id)
		return wrap("SystemEvent", ev, err)
	case RecordId_SystemState:
		ev, err := decodeSystemState(r)
		return wrap("SystemState", ev, err)
	case RecordId_Exception:
		ev, err := decodeException(r)
		return wrap("Exception", ev, err)
	case RecordId_Quit:
		return Quit{}, nil
	}

	return Null{}, nil
}

func wrap[T Event](name string, ev T, err error) (Event, error) {
	if err != nil {
		return nil, &errors.DecodeFailed{RecordName: name, Cause: err}
	}
	return ev, nil
}

func invalidEnum(name string, v uint32) error {
	return &errors.InvalidEnumValue{EnumName: name, IntValue: v}
}

func (id RecordId) String() string {
	switch id {
	case RecordId_Null:
		return "Null"
	case RecordId_Exception:
		return "Exception"
	case RecordId_Open:
		return "Open"
	case RecordId_Quit:
		return "Quit"
	case RecordId_Event:
		return "Event"
	case RecordId_EventObjectAddRemove:
		return "EventObjectAddRemove"
	case RecordId_EventFilename:
		return "EventFilename"
	case RecordId_EventFrame:
		return "EventFrame"
	case RecordId_SimObjectData:
		return "SimObjectData"
	case RecordId_SimObjectDataByType:
		return "SimObjectDataByType"
	case RecordId_SystemState:
		return "SystemState"
	case RecordId_AirportList:
		return "AirportList"
	}
	return fmt.Sprintf("RecordId(%d)", uint32(id))
}
