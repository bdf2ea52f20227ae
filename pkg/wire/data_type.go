package wire

import (
	"fmt"
	"reflect"
)

// DataType is the host-side primitive used to declare a structure field.
// Values match the SIMCONNECT_DATATYPE enumeration of the vendor SDK.
type DataType int32

const (
	DataType_Invalid DataType = iota
	DataType_Int32
	DataType_Int64
	DataType_Float32
	DataType_Float64
	DataType_String8
	DataType_String32
	DataType_String64
	DataType_String128
	DataType_String256
	DataType_String260
	DataType_StringV
	DataType_InitPosition
	DataType_MarkerState
	DataType_Waypoint
	DataType_LatLonAlt
	DataType_XYZ
)

var dataTypeNames = [...]string{
	"Invalid",
	"Int32",
	"Int64",
	"Float32",
	"Float64",
	"String8",
	"String32",
	"String64",
	"String128",
	"String256",
	"String260",
	"StringV",
	"InitPosition",
	"MarkerState",
	"Waypoint",
	"LatLonAlt",
	"XYZ",
}

func (t DataType) String() string {
	if t < 0 || int(t) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int32(t))
	}
	return dataTypeNames[t]
}

// Size is the packed width of the type on the wire. StringV has no fixed
// width and reports 0.
func (t DataType) Size() int {
	switch t {
	case DataType_Int32, DataType_Float32:
		return 4
	case DataType_Int64, DataType_Float64:
		return 8
	case DataType_String8:
		return 8
	case DataType_String32:
		return 32
	case DataType_String64:
		return 64
	case DataType_String128:
		return 128
	case DataType_String256:
		return 256
	case DataType_String260:
		return 260
	case DataType_InitPosition:
		return initPositionSize
	case DataType_MarkerState:
		return markerStateSize
	case DataType_Waypoint:
		return waypointSize
	case DataType_LatLonAlt:
		return latLonAltSize
	case DataType_XYZ:
		return xyzSize
	}
	return 0
}

var goTypeMapping = map[reflect.Type]DataType{
	reflect.TypeOf(int32(0)):       DataType_Int32,
	reflect.TypeOf(int64(0)):       DataType_Int64,
	reflect.TypeOf(float32(0)):     DataType_Float32,
	reflect.TypeOf(float64(0)):     DataType_Float64,
	reflect.TypeOf(""):             DataType_StringV,
	reflect.TypeOf(InitPosition{}): DataType_InitPosition,
	reflect.TypeOf(MarkerState{}):  DataType_MarkerState,
	reflect.TypeOf(Waypoint{}):     DataType_Waypoint,
	reflect.TypeOf(LatLonAlt{}):    DataType_LatLonAlt,
	reflect.TypeOf(XYZ{}):          DataType_XYZ,
}

// DataTypeOf maps a Go field type to its single wire representation.
func DataTypeOf(t reflect.Type) (DataType, bool) {
	dt, has := goTypeMapping[t]
	return dt, has
}

var stringBuckets = map[string]DataType{
	"string8":   DataType_String8,
	"string32":  DataType_String32,
	"string64":  DataType_String64,
	"string128": DataType_String128,
	"string256": DataType_String256,
	"string260": DataType_String260,
	"stringv":   DataType_StringV,
}
