package wire

import (
	goerrs "errors"
	"fmt"
	"reflect"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
)

var ErrNotAStructPointer = goerrs.New("decode target must be a non-nil pointer to a struct")

// Decode interprets a packed object-data payload as T, walking fields in the
// order they were declared to the host.
func Decode[T any](data []byte) (T, error) {
	var out T
	err := DecodeInto(data, &out)
	return out, err
}

func DecodeInto(data []byte, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrNotAStructPointer
	}
	v = v.Elem()

	layout, err := DescribeType(v.Type())
	if err != nil {
		return err
	}

	return decodeLayout(NewReader(v.Type().Name(), data), layout, v)
}

func decodeLayout(r *Reader, layout *Layout, v reflect.Value) error {
	for _, f := range layout.Fields {
		if err := decodeField(r, f, v.Field(f.fieldIndex)); err != nil {
			return &errors.DecodeFailed{
				RecordName: fmt.Sprintf("%s.%s", layout.GoType.Name(), f.Name),
				Cause:      err,
			}
		}
	}
	return nil
}

func decodeField(r *Reader, f FieldDescriptor, dst reflect.Value) error {
	switch f.DataType {
	case DataType_Int32:
		n, err := r.Int32()
		if err != nil {
			return err
		}
		dst.SetInt(int64(n))
	case DataType_Int64:
		n, err := r.Int64()
		if err != nil {
			return err
		}
		dst.SetInt(n)
	case DataType_Float32:
		n, err := r.Float32()
		if err != nil {
			return err
		}
		dst.SetFloat(float64(n))
	case DataType_Float64:
		n, err := r.Float64()
		if err != nil {
			return err
		}
		dst.SetFloat(n)
	case DataType_StringV:
		s, err := r.CString()
		if err != nil {
			return err
		}
		dst.SetString(s)
	case DataType_String8, DataType_String32, DataType_String64, DataType_String128, DataType_String256, DataType_String260:
		s, err := r.FixedString(f.DataType.Size())
		if err != nil {
			return err
		}
		dst.SetString(s)
	case DataType_LatLonAlt:
		c, err := readLatLonAlt(r)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(c))
	case DataType_XYZ:
		c, err := readXYZ(r)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(c))
	case DataType_InitPosition:
		c, err := readInitPosition(r)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(c))
	case DataType_MarkerState:
		c, err := readMarkerState(r)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(c))
	case DataType_Waypoint:
		c, err := readWaypoint(r)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(c))
	default:
		return &errors.InvalidEnumValue{
			EnumName: "DataType",
			IntValue: uint32(f.DataType),
		}
	}
	return nil
}

// Encode packs v the way the host would deliver it.
func Encode[T any](v T) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}

	layout, err := DescribeType(rv.Type())
	if err != nil {
		return nil, err
	}

	w := NewWriter(64)
	for _, f := range layout.Fields {
		field := rv.Field(f.fieldIndex)
		switch f.DataType {
		case DataType_Int32:
			w.Int32(int32(field.Int()))
		case DataType_Int64:
			w.Int64(field.Int())
		case DataType_Float32:
			w.Float32(float32(field.Float()))
		case DataType_Float64:
			w.Float64(field.Float())
		case DataType_StringV:
			w.CString(field.String())
		case DataType_String8, DataType_String32, DataType_String64, DataType_String128, DataType_String256, DataType_String260:
			w.FixedString(field.String(), f.DataType.Size())
		default:
			field.Interface().(compositeWriter).write(w)
		}
	}
	return w.Bytes(), nil
}

type compositeWriter interface {
	write(w *Writer)
}
