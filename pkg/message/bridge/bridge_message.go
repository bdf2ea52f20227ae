package bridge

import (
	"bytes"
	"encoding/binary"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type BridgeMessageType uint8

const (
	BridgeMessageType_Hello BridgeMessageType = iota
	BridgeMessageType_Telemetry
	BridgeMessageType_SystemEvent
	BridgeMessageType_SystemState

	BridgeMessageType_NONE
)

func (t BridgeMessageType) String() string {
	switch t {
	case BridgeMessageType_Hello:
		return "Hello"
	case BridgeMessageType_Telemetry:
		return "Telemetry"
	case BridgeMessageType_SystemEvent:
		return "SystemEvent"
	case BridgeMessageType_SystemState:
		return "SystemState"
	}
	return "NONE"
}

const headerSize = 5

// Hello is the first frame every subscriber receives.
type Hello struct {
	ProgramName        string `msgpack:"program"`
	ApplicationName    string `msgpack:"application,omitempty"`
	ApplicationVersion string `msgpack:"applicationVersion,omitempty"`
	SimConnectVersion  string `msgpack:"simConnectVersion,omitempty"`
}

type Telemetry struct {
	Stream    string `msgpack:"stream"`
	Timestamp int64  `msgpack:"ts"`
	Data      any    `msgpack:"data"`
}

type SystemEvent struct {
	Event     string `msgpack:"event"`
	Data      uint32 `msgpack:"data"`
	Payload   any    `msgpack:"payload,omitempty"`
	Timestamp int64  `msgpack:"ts"`
}

type SystemState struct {
	Kind    string `msgpack:"kind"`
	Path    string `msgpack:"path,omitempty"`
	Enabled bool   `msgpack:"enabled"`
}

// body is the msgpack envelope; exactly one member is set.
type body struct {
	Hello       *Hello       `msgpack:",omitempty"`
	Telemetry   *Telemetry   `msgpack:",omitempty"`
	SystemEvent *SystemEvent `msgpack:",omitempty"`
	SystemState *SystemState `msgpack:",omitempty"`
}

type BridgeMessage struct {
	MagicNumber uint32
	Version     uint8
	MessageType BridgeMessageType

	Hello       *Hello
	Telemetry   *Telemetry
	SystemEvent *SystemEvent
	SystemState *SystemState
}

// BridgeMessageSerializer frames bridge messages as a 4-byte magic number, a
// version/type byte (version in the high nibble) and a msgpack body.
type BridgeMessageSerializer struct {
	MagicNumber uint32
	Version     uint8
}

func (s BridgeMessageSerializer) messageType(msg *BridgeMessage) (BridgeMessageType, error) {
	set := 0
	msgType := BridgeMessageType_NONE
	if msg.Hello != nil {
		set++
		msgType = BridgeMessageType_Hello
	}
	if msg.Telemetry != nil {
		set++
		msgType = BridgeMessageType_Telemetry
	}
	if msg.SystemEvent != nil {
		set++
		msgType = BridgeMessageType_SystemEvent
	}
	if msg.SystemState != nil {
		set++
		msgType = BridgeMessageType_SystemState
	}

	if set != 1 {
		return BridgeMessageType_NONE, &errors.InvalidEnumValue{
			EnumName: "BridgeMessage::MessageType",
			IntValue: uint32(set),
		}
	}
	return msgType, nil
}

func (s BridgeMessageSerializer) Serialize(msg *BridgeMessage) ([]byte, error) {
	msgType, err := s.messageType(msg)
	if err != nil {
		return nil, err
	}

	buffer := new(bytes.Buffer)
	buffer.Grow(64)

	header := [headerSize]byte{}
	binary.LittleEndian.PutUint32(header[0:4], s.MagicNumber)
	header[4] = (s.Version&0xF)<<4 | uint8(msgType)&0xF
	buffer.Write(header[:])

	err = msgpack.NewEncoder(buffer).Encode(&body{
		Hello:       msg.Hello,
		Telemetry:   msg.Telemetry,
		SystemEvent: msg.SystemEvent,
		SystemState: msg.SystemState,
	})
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

func (s BridgeMessageSerializer) Parse(msg []byte) (*BridgeMessage, error) {
	if len(msg) < headerSize {
		return nil, &errors.Underflow{
			MessageName: "BridgeMessage",
			MsgSize:     len(msg),
			MinimumSize: headerSize,
		}
	}

	magicNumber := binary.LittleEndian.Uint32(msg[0:4])
	versionTypeByte := msg[4]
	version := versionTypeByte & 0xF0 >> 4
	msgTypeNum := versionTypeByte & 0xF

	if magicNumber != s.MagicNumber || version != s.Version {
		return nil, &errors.InvalidHeaderVersion{
			ExpectedMagicNumber: s.MagicNumber,
			ExpectedVersion:     s.Version,
			ActualMagicNumber:   magicNumber,
			ActualVersion:       version,
		}
	}

	msgType := BridgeMessageType(msgTypeNum)
	if msgType >= BridgeMessageType_NONE {
		return nil, &errors.InvalidEnumValue{
			EnumName: "BridgeMessageType",
			IntValue: uint32(msgTypeNum),
		}
	}

	var b body
	if err := msgpack.Unmarshal(msg[headerSize:], &b); err != nil {
		return nil, &errors.DecodeFailed{RecordName: "BridgeMessage::" + msgType.String(), Cause: err}
	}

	parsed := &BridgeMessage{
		MagicNumber: magicNumber,
		Version:     version,
		MessageType: msgType,
		Hello:       b.Hello,
		Telemetry:   b.Telemetry,
		SystemEvent: b.SystemEvent,
		SystemState: b.SystemState,
	}

	actual, err := s.messageType(parsed)
	if err != nil {
		return nil, err
	}
	if actual != msgType {
		return nil, &errors.InvalidEnumValue{
			EnumName: "BridgeMessageType",
			IntValue: uint32(msgTypeNum),
		}
	}

	return parsed, nil
}
