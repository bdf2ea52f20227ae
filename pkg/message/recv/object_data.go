package recv

import (
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

// ObjectData is a SIMOBJECT_DATA record. The payload is kept as raw bytes
// until the consumer names the structure it was declared with.
type ObjectData struct {
	RequestId   uint32
	ObjectId    uint32
	DefineId    uint32
	Flags       uint32
	EntryNumber uint32
	OutOf       uint32
	DefineCount uint32
	Data        []byte
}

func (*ObjectData) RecordName() string { return "ObjectData" }

func decodeObjectData(r *wire.Reader) (*ObjectData, error) {
	od := &ObjectData{}
	for _, dst := range []*uint32{
		&od.RequestId,
		&od.ObjectId,
		&od.DefineId,
		&od.Flags,
		&od.EntryNumber,
		&od.OutOf,
		&od.DefineCount,
	} {
		v, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	od.Data = r.Rest()
	return od, nil
}

// Decode interprets the payload against the layout of target, which must be
// a pointer to the struct type the define id was registered with.
func (od *ObjectData) Decode(target any) error {
	return wire.DecodeInto(od.Data, target)
}
