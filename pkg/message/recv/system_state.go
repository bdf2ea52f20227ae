package recv

import (
	"fmt"

	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// SimStateArgs is a queryable piece of host state. The numeric value doubles
// as the request id for RequestSystemState.
type SimStateArgs uint32

const (
	SimStateArgs_AircraftLoaded SimStateArgs = iota
	SimStateArgs_DialogMode
	SimStateArgs_FlightLoaded
	SimStateArgs_FlightPlan
	SimStateArgs_Sim

	simStateArgsCount
)

var simStateArgsNames = [simStateArgsCount]string{
	"AircraftLoaded",
	"DialogMode",
	"FlightLoaded",
	"FlightPlan",
	"Sim",
}

func (a SimStateArgs) SimName() string {
	if a < simStateArgsCount {
		return simStateArgsNames[a]
	}
	return fmt.Sprintf("SimStateArgs(%d)", uint32(a))
}

func (a SimStateArgs) String() string {
	return a.SimName()
}

func (a SimStateArgs) Valid() bool {
	return a < simStateArgsCount
}

// IsBool reports whether the host answers this query with dwInteger rather
// than szString.
func (a SimStateArgs) IsBool() bool {
	return a == SimStateArgs_DialogMode || a == SimStateArgs_Sim
}

func ParseSimStateArgs(name string) (SimStateArgs, bool) {
	for i, n := range simStateArgsNames {
		if n == name {
			return SimStateArgs(i), true
		}
	}
	return 0, false
}

var _ wire.Named = SimStateArgs(0)

// SystemState is the answer to one RequestSystemState call. Exactly one of
// Path or Enabled is meaningful, depending on Kind.
type SystemState struct {
	Kind    SimStateArgs `msgpack:"kind"`
	Path    string       `msgpack:"path,omitempty"`
	Enabled bool         `msgpack:"enabled"`
}

func (*SystemState) RecordName() string { return "SystemState" }

func (s *SystemState) String() string {
	if s.Kind.IsBool() {
		return fmt.Sprintf("%s=%t", s.Kind, s.Enabled)
	}
	return fmt.Sprintf("%s=%q", s.Kind, s.Path)
}

func decodeSystemState(r *wire.Reader) (*SystemState, error) {
	requestId, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	kind := SimStateArgs(requestId)
	if !kind.Valid() {
		return nil, invalidEnum("SimStateArgs", requestId)
	}

	integer, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	// fFloat is never populated for the supported queries.
	if err := r.Skip(4); err != nil {
		return nil, err
	}

	state := &SystemState{Kind: kind}
	if kind.IsBool() {
		state.Enabled = integer != 0
		return state, nil
	}

	if state.Path, err = r.FixedString(maxPath); err != nil {
		return nil, err
	}
	return state, nil
}
