package wire

import (
	"testing"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type airData struct {
	Airspeed float32 `simvar:"Airspeed Indicated" unit:"knots"`
	Altitude float32 `simvar:"Indicated Altitude" unit:"feet"`
}

type mixedData struct {
	Title    string       `simvar:"Title"`
	Tail     string       `simvar:"ATC Id" wire:"string32"`
	Engines  int32        `simvar:"Number Of Engines" unit:"number"`
	Ticks    int64        `simvar:"Absolute Time" unit:"seconds"`
	Heading  float64      `simvar:"Plane Heading Degrees True" unit:"degrees"`
	Position LatLonAlt    `simvar:"Structure LatLonAlt"`
	Velocity XYZ          `simvar:"Structure World Velocity"`
	Next     Waypoint     `simvar:"Structure Waypoint"`
	Marker   MarkerState  `simvar:"Structure Marker State"`
	Init     InitPosition `simvar:"Structure Init Position"`
}

func TestDecodePackedFloats(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x80, 0x3F, 0x00, 0x00, 0x00, 0x42}

	got, err := Decode[airData](raw)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), got.Airspeed)
	assert.Equal(t, float32(32.0), got.Altitude)
}

func TestDecodeRecoversEncodedValues(t *testing.T) {
	in := mixedData{
		Title:    "Cessna 172 Skyhawk",
		Tail:     "N172SP",
		Engines:  1,
		Ticks:    -42,
		Heading:  271.5,
		Position: LatLonAlt{Latitude: 47.45, Longitude: -122.31, Altitude: 433},
		Velocity: XYZ{X: 1, Y: 2, Z: 3},
		Next:     Waypoint{Latitude: 1, Longitude: 2, Altitude: 3, Flags: 4, KtsSpeed: 120, PercentThrottle: 75},
		Marker:   MarkerState{Name: "Cg", State: 1},
		Init:     InitPosition{Latitude: 10, Longitude: 20, Altitude: 30, Heading: 90, OnGround: 1, Airspeed: 0},
	}

	raw, err := Encode(in)
	require.NoError(t, err)

	// StringV is exact length + terminator, String32 is a full slot.
	expectedSize := len(in.Title) + 1 + 32 + 4 + 8 + 8 + latLonAltSize + xyzSize + waypointSize + markerStateSize + initPositionSize
	assert.Equal(t, expectedSize, len(raw))

	out, err := Decode[mixedData](raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeTruncatedBufferIsAnError(t *testing.T) {
	_, err := Decode[airData]([]byte{0x00, 0x00, 0x80, 0x3F, 0x00})
	require.Error(t, err)

	var decodeErr *errors.DecodeFailed
	require.ErrorAs(t, err, &decodeErr)

	var underflow *errors.Underflow
	assert.ErrorAs(t, err, &underflow)
}

func TestDecodeInvalidUTF8IsAnError(t *testing.T) {
	type named struct {
		Title string `simvar:"Title"`
	}

	_, err := Decode[named]([]byte{0xff, 0xfe, 0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidString)
}

func TestDecodeUnterminatedVariableString(t *testing.T) {
	type named struct {
		Title string `simvar:"Title"`
	}

	_, err := Decode[named]([]byte("no terminator"))
	var underflow *errors.Underflow
	assert.ErrorAs(t, err, &underflow)
}

func TestDecodeIntoRejectsNonPointer(t *testing.T) {
	assert.ErrorIs(t, DecodeInto([]byte{}, airData{}), ErrNotAStructPointer)
	assert.ErrorIs(t, DecodeInto([]byte{}, (*airData)(nil)), ErrNotAStructPointer)
}

func TestFixedStringTruncatesToSlot(t *testing.T) {
	type short struct {
		Code string `simvar:"Code" wire:"string8"`
	}

	raw, err := Encode(short{Code: "ABCDEFGHIJ"})
	require.NoError(t, err)
	require.Len(t, raw, 8)

	out, err := Decode[short](raw)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFG", out.Code)
}
