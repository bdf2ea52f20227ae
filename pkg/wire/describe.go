package wire

import (
	"encoding/binary"
	goerrs "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
)

const (
	TagSimVar = "simvar"
	TagUnit   = "unit"
	TagWire   = "wire"
)

var ErrNotAStruct = goerrs.New("data definitions must be declared with a struct type")

// FieldDescriptor is one member of a data definition, as announced to the
// host through AddToDataDefinition.
type FieldDescriptor struct {
	Id       uint32
	Name     string
	Unit     string
	DataType DataType

	fieldIndex int
}

// Layout is the ordered field list of a Go struct plus a checksum of the
// declared shape.
type Layout struct {
	GoType      reflect.Type
	Fields      []FieldDescriptor
	Fingerprint uint64
}

var layoutCache sync.Map // reflect.Type -> *Layout

func Describe[T any]() (*Layout, error) {
	return DescribeType(reflect.TypeOf((*T)(nil)).Elem())
}

func DescribeType(t reflect.Type) (*Layout, error) {
	if cached, has := layoutCache.Load(t); has {
		return cached.(*Layout), nil
	}

	if t.Kind() != reflect.Struct {
		return nil, ErrNotAStruct
	}

	fields := make([]FieldDescriptor, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)

		simVar, tagged := sf.Tag.Lookup(TagSimVar)
		if simVar == "-" {
			continue
		}
		if !sf.IsExported() || !tagged || simVar == "" {
			return nil, &errors.MissingFieldTag{
				StructName: t.Name(),
				FieldName:  sf.Name,
			}
		}

		dataType, has := DataTypeOf(sf.Type)
		if !has {
			return nil, &errors.UnsupportedFieldType{
				StructName: t.Name(),
				FieldName:  sf.Name,
				TypeName:   sf.Type.String(),
			}
		}

		if bucket, hasBucket := sf.Tag.Lookup(TagWire); hasBucket {
			bucketType, known := stringBuckets[strings.ToLower(bucket)]
			if !known || dataType != DataType_StringV {
				return nil, &errors.UnsupportedFieldType{
					StructName: t.Name(),
					FieldName:  sf.Name,
					TypeName:   sf.Type.String() + " as " + bucket,
				}
			}
			dataType = bucketType
		}

		fields = append(fields, FieldDescriptor{
			Id:         uint32(len(fields)),
			Name:       simVar,
			Unit:       sf.Tag.Get(TagUnit),
			DataType:   dataType,
			fieldIndex: i,
		})
	}

	layout := &Layout{
		GoType:      t,
		Fields:      fields,
		Fingerprint: Fingerprint(fields),
	}

	actual, _ := layoutCache.LoadOrStore(t, layout)
	return actual.(*Layout), nil
}

// Fingerprint hashes the declared order, names, units and types of a field
// list. Two layouts with the same fingerprint decode the same bytes the same
// way.
func Fingerprint(fields []FieldDescriptor) uint64 {
	d := xxhash.New()
	var scratch [8]byte
	for _, f := range fields {
		binary.LittleEndian.PutUint32(scratch[0:4], f.Id)
		binary.LittleEndian.PutUint32(scratch[4:8], uint32(f.DataType))
		d.Write(scratch[:])
		d.WriteString(f.Name)
		d.Write([]byte{0})
		d.WriteString(f.Unit)
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// Size is the packed record width, or -1 when a variable-length string makes
// the width data dependent.
func (l *Layout) Size() int {
	total := 0
	for _, f := range l.Fields {
		if f.DataType == DataType_StringV {
			return -1
		}
		total += f.DataType.Size()
	}
	return total
}
