package recv

import (
	"fmt"

	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// Exception reports that the host rejected an earlier call. SendId is the
// packet id of the offending call and Index the parameter it objected to.
type Exception struct {
	Code   uint32
	SendId uint32
	Index  uint32
}

func (*Exception) RecordName() string { return "Exception" }

var exceptionNames = [...]string{
	"NONE",
	"ERROR",
	"SIZE_MISMATCH",
	"UNRECOGNIZED_ID",
	"UNOPENED",
	"VERSION_MISMATCH",
	"TOO_MANY_GROUPS",
	"NAME_UNRECOGNIZED",
	"TOO_MANY_EVENT_NAMES",
	"EVENT_ID_DUPLICATE",
	"TOO_MANY_MAPS",
	"TOO_MANY_OBJECTS",
	"TOO_MANY_REQUESTS",
	"WEATHER_INVALID_PORT",
	"WEATHER_INVALID_METAR",
	"WEATHER_UNABLE_TO_GET_OBSERVATION",
	"WEATHER_UNABLE_TO_CREATE_STATION",
	"WEATHER_UNABLE_TO_REMOVE_STATION",
	"INVALID_DATA_TYPE",
	"INVALID_DATA_SIZE",
	"DATA_ERROR",
	"INVALID_ARRAY",
	"CREATE_OBJECT_FAILED",
	"LOAD_FLIGHTPLAN_FAILED",
	"OPERATION_INVALID_FOR_OBJECT_TYPE",
	"ILLEGAL_OPERATION",
	"ALREADY_SUBSCRIBED",
	"INVALID_ENUM",
	"DEFINITION_ERROR",
	"DUPLICATE_ID",
	"DATUM_ID",
	"OUT_OF_BOUNDS",
	"ALREADY_CREATED",
}

func (e *Exception) Name() string {
	if int(e.Code) < len(exceptionNames) {
		return exceptionNames[e.Code]
	}
	return fmt.Sprintf("EXCEPTION_%d", e.Code)
}

func decodeException(r *wire.Reader) (*Exception, error) {
	ex := &Exception{}
	var err error
	if ex.Code, err = r.Uint32(); err != nil {
		return nil, err
	}
	if ex.SendId, err = r.Uint32(); err != nil {
		return nil, err
	}
	if ex.Index, err = r.Uint32(); err != nil {
		return nil, err
	}
	return ex, nil
}
