package fakehost

import (
	"github.com/sessamekesh/simconnect-bridge/pkg/message/recv"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// ProtocolVersion is stamped into the dwVersion field of built records.
const ProtocolVersion = 4

const (
	groupIdUnused = 0xFFFFFFFF
	maxPath       = 260
)

func record(id recv.RecordId, body *wire.Writer) []byte {
	b := body.Bytes()
	return wire.NewWriter(recv.HeaderSize+len(b)).
		Uint32(uint32(recv.HeaderSize + len(b))).
		Uint32(ProtocolVersion).
		Uint32(uint32(id)).
		Raw(b).
		Bytes()
}

// RawRecord wraps an arbitrary body in a record header.
func RawRecord(id recv.RecordId, body []byte) []byte {
	return record(id, wire.NewWriter(len(body)).Raw(body))
}

func NullRecord() []byte {
	return record(recv.RecordId_Null, wire.NewWriter(0))
}

func QuitRecord() []byte {
	return record(recv.RecordId_Quit, wire.NewWriter(0))
}

type VersionPair struct {
	Major, Minor uint32
}

func OpenRecord(appName string, appVersion, appBuild, scVersion, scBuild VersionPair) []byte {
	w := wire.NewWriter(256 + 32).FixedString(appName, 256)
	for _, v := range []VersionPair{appVersion, appBuild, scVersion, scBuild} {
		w.Uint32(v.Major).Uint32(v.Minor)
	}
	return record(recv.RecordId_Open, w)
}

func ExceptionRecord(code, sendId, index uint32) []byte {
	return record(recv.RecordId_Exception, wire.NewWriter(12).Uint32(code).Uint32(sendId).Uint32(index))
}

// ObjectDataRecord builds a SIMOBJECT_DATA record for a single user-object
// entry.
func ObjectDataRecord(requestId, defineId uint32, data []byte) []byte {
	w := wire.NewWriter(28 + len(data)).
		Uint32(requestId).
		Uint32(0).
		Uint32(defineId).
		Uint32(0).
		Uint32(1).
		Uint32(1).
		Uint32(1).
		Raw(data)
	return record(recv.RecordId_SimObjectData, w)
}

func eventBody(event recv.SystemEvent, data uint32) *wire.Writer {
	return wire.NewWriter(12).Uint32(groupIdUnused).Uint32(uint32(event)).Uint32(data)
}

func EventRecord(event recv.SystemEvent, data uint32) []byte {
	return record(recv.RecordId_Event, eventBody(event, data))
}

func FilenameEventRecord(event recv.SystemEvent, fileName string, flags uint32) []byte {
	return record(recv.RecordId_EventFilename, eventBody(event, 0).FixedString(fileName, maxPath).Uint32(flags))
}

func ObjectAddRemoveRecord(event recv.SystemEvent, objectId uint32, objType recv.SimObjectType) []byte {
	return record(recv.RecordId_EventObjectAddRemove, eventBody(event, objectId).Uint32(uint32(objType)))
}

func FrameEventRecord(event recv.SystemEvent, frameRate, simSpeed float32) []byte {
	return record(recv.RecordId_EventFrame, eventBody(event, 0).Float32(frameRate).Float32(simSpeed))
}

func SystemStateRecord(kind recv.SimStateArgs, integer uint32, str string) []byte {
	w := wire.NewWriter(12+maxPath).
		Uint32(uint32(kind)).
		Uint32(integer).
		Float32(0).
		FixedString(str, maxPath)
	return record(recv.RecordId_SystemState, w)
}
