package wire

const (
	latLonAltSize    = 3 * 8
	xyzSize          = 3 * 8
	initPositionSize = 6*8 + 2*4
	markerStateSize  = 64 + 4
	waypointSize     = 3*8 + 4 + 2*8
)

type LatLonAlt struct {
	Latitude  float64 `msgpack:"lat"`
	Longitude float64 `msgpack:"lon"`
	Altitude  float64 `msgpack:"alt"`
}

type XYZ struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

type InitPosition struct {
	Latitude  float64 `msgpack:"lat"`
	Longitude float64 `msgpack:"lon"`
	Altitude  float64 `msgpack:"alt"`
	Pitch     float64 `msgpack:"pitch"`
	Bank      float64 `msgpack:"bank"`
	Heading   float64 `msgpack:"heading"`
	OnGround  uint32  `msgpack:"onGround"`
	Airspeed  uint32  `msgpack:"airspeed"`
}

type MarkerState struct {
	Name  string `msgpack:"name"`
	State uint32 `msgpack:"state"`
}

type Waypoint struct {
	Latitude        float64 `msgpack:"lat"`
	Longitude       float64 `msgpack:"lon"`
	Altitude        float64 `msgpack:"alt"`
	Flags           uint32  `msgpack:"flags"`
	KtsSpeed        float64 `msgpack:"ktsSpeed"`
	PercentThrottle float64 `msgpack:"percentThrottle"`
}

func readFloat64s(r *Reader, dst ...*float64) error {
	for _, d := range dst {
		v, err := r.Float64()
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

func readLatLonAlt(r *Reader) (LatLonAlt, error) {
	var v LatLonAlt
	err := readFloat64s(r, &v.Latitude, &v.Longitude, &v.Altitude)
	return v, err
}

func readXYZ(r *Reader) (XYZ, error) {
	var v XYZ
	err := readFloat64s(r, &v.X, &v.Y, &v.Z)
	return v, err
}

func readInitPosition(r *Reader) (InitPosition, error) {
	var v InitPosition
	if err := readFloat64s(r, &v.Latitude, &v.Longitude, &v.Altitude, &v.Pitch, &v.Bank, &v.Heading); err != nil {
		return v, err
	}

	var err error
	if v.OnGround, err = r.Uint32(); err != nil {
		return v, err
	}
	v.Airspeed, err = r.Uint32()
	return v, err
}

func readMarkerState(r *Reader) (MarkerState, error) {
	var v MarkerState
	var err error
	if v.Name, err = r.FixedString(64); err != nil {
		return v, err
	}
	v.State, err = r.Uint32()
	return v, err
}

func readWaypoint(r *Reader) (Waypoint, error) {
	var v Waypoint
	if err := readFloat64s(r, &v.Latitude, &v.Longitude, &v.Altitude); err != nil {
		return v, err
	}

	var err error
	if v.Flags, err = r.Uint32(); err != nil {
		return v, err
	}
	err = readFloat64s(r, &v.KtsSpeed, &v.PercentThrottle)
	return v, err
}

func (v LatLonAlt) write(w *Writer) {
	w.Float64(v.Latitude).Float64(v.Longitude).Float64(v.Altitude)
}

func (v XYZ) write(w *Writer) {
	w.Float64(v.X).Float64(v.Y).Float64(v.Z)
}

func (v InitPosition) write(w *Writer) {
	w.Float64(v.Latitude).Float64(v.Longitude).Float64(v.Altitude)
	w.Float64(v.Pitch).Float64(v.Bank).Float64(v.Heading)
	w.Uint32(v.OnGround).Uint32(v.Airspeed)
}

func (v MarkerState) write(w *Writer) {
	w.FixedString(v.Name, 64).Uint32(v.State)
}

func (v Waypoint) write(w *Writer) {
	w.Float64(v.Latitude).Float64(v.Longitude).Float64(v.Altitude)
	w.Uint32(v.Flags)
	w.Float64(v.KtsSpeed).Float64(v.PercentThrottle)
}
