package errors

import (
	goerrs "errors"
	"fmt"
)

var (
	ErrChannelClosed = goerrs.New("delivery channel closed: dispatch loop is no longer running")
	ErrHandleClosed  = goerrs.New("connection handle already released")
)

type Underflow struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underflow) Error() string {
	return fmt.Sprintf("Message parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type InvalidHeaderVersion struct {
	ExpectedMagicNumber uint32
	ActualMagicNumber   uint32
	ExpectedVersion     uint8
	ActualVersion       uint8
}

func (e *InvalidHeaderVersion) Error() string {
	return fmt.Sprintf("Invalid header: expected MagicNumber=%d, got MagicNumber=%d. Expected version %d, got %d", e.ExpectedMagicNumber, e.ActualMagicNumber, e.ExpectedVersion, e.ActualVersion)
}

type InvalidEnumValue struct {
	EnumName string
	IntValue uint32
}

func (e *InvalidEnumValue) Error() string {
	return fmt.Sprintf("Invalid enum value=%d (enum: %s)", e.IntValue, e.EnumName)
}

// HostCallFailed carries the raw HRESULT of a failed native call.
type HostCallFailed struct {
	Call string
	Code int32
}

func (e *HostCallFailed) Error() string {
	return fmt.Sprintf("Host call %s failed, HRESULT=0x%08x", e.Call, uint32(e.Code))
}

type ConnectionFailed struct {
	ProgramName string
	Cause       error
}

func (e *ConnectionFailed) Error() string {
	return fmt.Sprintf("Failed to open connection for program '%s': %v", e.ProgramName, e.Cause)
}

func (e *ConnectionFailed) Unwrap() error {
	return e.Cause
}

type DecodeFailed struct {
	RecordName string
	Cause      error
}

func (e *DecodeFailed) Error() string {
	return fmt.Sprintf("Failed to decode record (type=%s): %v", e.RecordName, e.Cause)
}

func (e *DecodeFailed) Unwrap() error {
	return e.Cause
}

type NotRegistered struct {
	Identity string
}

func (e *NotRegistered) Error() string {
	return fmt.Sprintf("Structure '%s' was never registered with this connection", e.Identity)
}

type UnsupportedFieldType struct {
	StructName string
	FieldName  string
	TypeName   string
}

func (e *UnsupportedFieldType) Error() string {
	return fmt.Sprintf("Field %s.%s has type %s, which has no wire representation", e.StructName, e.FieldName, e.TypeName)
}

type MissingFieldTag struct {
	StructName string
	FieldName  string
}

func (e *MissingFieldTag) Error() string {
	return fmt.Sprintf("Field %s.%s is missing a simvar tag", e.StructName, e.FieldName)
}

type LayoutMismatch struct {
	Identity string
	Expected uint64
	Actual   uint64
}

func (e *LayoutMismatch) Error() string {
	return fmt.Sprintf("Layout of '%s' changed since registration (expected fingerprint %016x, got %016x)", e.Identity, e.Expected, e.Actual)
}
