package recv

import (
	"fmt"

	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// SystemEvent names a host notification a client can subscribe to. The
// numeric value doubles as the client event id used on the wire.
type SystemEvent uint32

const (
	SystemEvent_OneSec SystemEvent = iota
	SystemEvent_FourSec
	SystemEvent_SixHz
	SystemEvent_AircraftLoaded
	SystemEvent_Crashed
	SystemEvent_CrashReset
	SystemEvent_FlightLoaded
	SystemEvent_FlightSaved
	SystemEvent_FlightPlanActivated
	SystemEvent_FlightPlanDeactivated
	SystemEvent_Frame
	SystemEvent_ObjectAdded
	SystemEvent_ObjectRemoved
	SystemEvent_Pause
	SystemEvent_PauseEX1
	SystemEvent_Paused
	SystemEvent_PauseFrame
	SystemEvent_PositionChanged
	SystemEvent_Sim
	SystemEvent_SimStart
	SystemEvent_SimStop
	SystemEvent_Sound
	SystemEvent_Unpaused
	SystemEvent_View

	systemEventCount
)

var systemEventNames = [systemEventCount]string{
	"1sec",
	"4sec",
	"6Hz",
	"AircraftLoaded",
	"Crashed",
	"CrashReset",
	"FlightLoaded",
	"FlightSaved",
	"FlightPlanActivated",
	"FlightPlanDeactivated",
	"Frame",
	"ObjectAdded",
	"ObjectRemoved",
	"Pause",
	"Pause_EX1",
	"Paused",
	"PauseFrame",
	"PositionChanged",
	"Sim",
	"SimStart",
	"SimStop",
	"Sound",
	"Unpaused",
	"View",
}

func (e SystemEvent) SimName() string {
	if e < systemEventCount {
		return systemEventNames[e]
	}
	return fmt.Sprintf("SystemEvent(%d)", uint32(e))
}

func (e SystemEvent) String() string {
	return e.SimName()
}

func (e SystemEvent) Valid() bool {
	return e < systemEventCount
}

func ParseSystemEvent(name string) (SystemEvent, bool) {
	for i, n := range systemEventNames {
		if n == name {
			return SystemEvent(i), true
		}
	}
	return 0, false
}

func AllSystemEvents() []SystemEvent {
	out := make([]SystemEvent, 0, systemEventCount)
	for e := SystemEvent(0); e < systemEventCount; e++ {
		out = append(out, e)
	}
	return out
}

var _ wire.Named = SystemEvent(0)

// EventPayload is the kind-specific data attached to a system event, or nil
// for events that carry none.
type EventPayload interface {
	payloadName() string
}

type SimObjectType uint32

const (
	SimObjectType_User SimObjectType = iota
	SimObjectType_All
	SimObjectType_Aircraft
	SimObjectType_Helicopter
	SimObjectType_Boat
	SimObjectType_Ground
)

var simObjectTypeNames = [...]string{"User", "All", "Aircraft", "Helicopter", "Boat", "Ground"}

func (t SimObjectType) String() string {
	if int(t) < len(simObjectTypeNames) {
		return simObjectTypeNames[t]
	}
	return fmt.Sprintf("SimObjectType(%d)", uint32(t))
}

func (SimObjectType) payloadName() string { return "ObjectType" }

type ViewType uint32

const (
	ViewType_Cockpit2D      ViewType = 1
	ViewType_CockpitVirtual ViewType = 2
	ViewType_Orthogonal     ViewType = 4
)

func (v ViewType) String() string {
	switch v {
	case ViewType_Cockpit2D:
		return "Cockpit2D"
	case ViewType_CockpitVirtual:
		return "CockpitVirtual"
	case ViewType_Orthogonal:
		return "Orthogonal"
	}
	return fmt.Sprintf("ViewType(%d)", uint32(v))
}

func (ViewType) payloadName() string { return "View" }

// State is the on/off flag carried by Pause, Sim and Sound.
type State bool

func (State) payloadName() string { return "State" }

// PauseFlags is the Pause_EX1 bitmask.
type PauseFlags uint32

const (
	PauseFlags_Unpaused   PauseFlags = 0
	PauseFlags_Full       PauseFlags = 1
	PauseFlags_FullWithFx PauseFlags = 2
	PauseFlags_Active     PauseFlags = 4
	PauseFlags_Sim        PauseFlags = 8
)

func (PauseFlags) payloadName() string { return "PauseFlags" }

type FileName struct {
	Name  string `msgpack:"name"`
	Flags uint32 `msgpack:"flags"`
}

func (FileName) payloadName() string { return "FileName" }

type FrameRate struct {
	FrameRate float32 `msgpack:"frameRate"`
	SimSpeed  float32 `msgpack:"simSpeed"`
}

func (FrameRate) payloadName() string { return "Frame" }

// SystemEventData is a decoded EVENT, EVENT_FILENAME, EVENT_OBJECT_ADDREMOVE
// or EVENT_FRAME record.
type SystemEventData struct {
	Event   SystemEvent
	GroupId uint32
	Data    uint32
	Payload EventPayload
}

func (*SystemEventData) RecordName() string { return "SystemEvent" }

const (
	maxPath = 260
)

func decodeSystemEvent(r *wire.Reader, recordId RecordId) (*SystemEventData, error) {
	groupId, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	eventId, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	data, err := r.Uint32()
	if err != nil {
		return nil, err
	}

	event := SystemEvent(eventId)
	if !event.Valid() {
		return nil, invalidEnum("SystemEvent", eventId)
	}

	ev := &SystemEventData{
		Event:   event,
		GroupId: groupId,
		Data:    data,
	}

	switch recordId {
	case RecordId_EventFilename:
		name, err := r.FixedString(maxPath)
		if err != nil {
			return nil, err
		}
		flags, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		ev.Payload = FileName{Name: name, Flags: flags}
	case RecordId_EventObjectAddRemove:
		objType, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		if int(objType) >= len(simObjectTypeNames) {
			return nil, invalidEnum("SimObjectType", objType)
		}
		ev.Payload = SimObjectType(objType)
	case RecordId_EventFrame:
		var frame FrameRate
		if frame.FrameRate, err = r.Float32(); err != nil {
			return nil, err
		}
		if frame.SimSpeed, err = r.Float32(); err != nil {
			return nil, err
		}
		ev.Payload = frame
	default:
		payload, err := payloadFromData(event, data)
		if err != nil {
			return nil, err
		}
		ev.Payload = payload
	}

	return ev, nil
}

func payloadFromData(event SystemEvent, data uint32) (EventPayload, error) {
	switch event {
	case SystemEvent_View:
		view := ViewType(data)
		switch view {
		case ViewType_Cockpit2D, ViewType_CockpitVirtual, ViewType_Orthogonal:
			return view, nil
		}
		return nil, invalidEnum("ViewType", data)
	case SystemEvent_Pause, SystemEvent_Sim, SystemEvent_Sound:
		return State(data != 0), nil
	case SystemEvent_PauseEX1:
		return PauseFlags(data), nil
	}
	return nil, nil
}
