package native

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
)

const (
	DefaultLibraryName = "SimConnect.dll"
	LibraryPathEnv     = "SIMCONNECT_SDK"
)

// DefaultLibraryPath honours SIMCONNECT_SDK before falling back to the DLL
// name resolved through the normal loader search path.
func DefaultLibraryPath() string {
	if p := os.Getenv(LibraryPathEnv); p != "" {
		return p
	}
	return DefaultLibraryName
}

// DLL binds the vendor client library at runtime.
type DLL struct {
	path string
	lib  uintptr

	open                   func(phSimConnect *uintptr, szName *byte, hWnd uintptr, userEventWin32 uint32, hEventHandle uintptr, configIndex uint32) int32
	close                  func(hSimConnect uintptr) int32
	addToDataDefinition    func(hSimConnect uintptr, defineId uint32, datumName *byte, unitsName *byte, datumType int32, epsilon float32, datumId uint32) int32
	requestDataOnSimObject func(hSimConnect uintptr, requestId, defineId, objectId, period, flags, origin, interval, limit uint32) int32
	getNextDispatch        func(hSimConnect uintptr, ppData **byte, pcbData *uint32) int32
	subscribeToSystemEvent func(hSimConnect uintptr, eventId uint32, systemEventName *byte) int32
	unsubscribeFromEvent   func(hSimConnect uintptr, eventId uint32) int32
	requestSystemState     func(hSimConnect uintptr, requestId uint32, state *byte) int32
}

var _ Library = (*DLL)(nil)

func LoadLibrary(path string) (*DLL, error) {
	lib, err := openSharedLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	d := &DLL{path: path, lib: lib}
	bindings := []struct {
		symbol string
		fptr   any
	}{
		{"SimConnect_Open", &d.open},
		{"SimConnect_Close", &d.close},
		{"SimConnect_AddToDataDefinition", &d.addToDataDefinition},
		{"SimConnect_RequestDataOnSimObject", &d.requestDataOnSimObject},
		{"SimConnect_GetNextDispatch", &d.getNextDispatch},
		{"SimConnect_SubscribeToSystemEvent", &d.subscribeToSystemEvent},
		{"SimConnect_UnsubscribeFromSystemEvent", &d.unsubscribeFromEvent},
		{"SimConnect_RequestSystemState", &d.requestSystemState},
	}
	for _, b := range bindings {
		sym, err := lookupSymbol(lib, b.symbol)
		if err != nil {
			closeSharedLibrary(lib)
			return nil, fmt.Errorf("resolving %s in %s: %w", b.symbol, path, err)
		}
		purego.RegisterFunc(b.fptr, sym)
	}

	return d, nil
}

func (d *DLL) Path() string {
	return d.path
}

// Release unloads the library. No handle opened through it may be used
// afterwards.
func (d *DLL) Release() error {
	return closeSharedLibrary(d.lib)
}

func cstr(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

func (d *DLL) Open(name []byte) (RawHandle, int32) {
	var h uintptr
	hr := d.open(&h, cstr(name), 0, 0, 0, 0)
	return RawHandle(h), hr
}

func (d *DLL) Close(h RawHandle) int32 {
	return d.close(uintptr(h))
}

func (d *DLL) AddToDataDefinition(h RawHandle, defineId uint32, datumName, unitsName []byte, datumType wire.DataType, datumId uint32) int32 {
	return d.addToDataDefinition(uintptr(h), defineId, cstr(datumName), cstr(unitsName), int32(datumType), 0, datumId)
}

func (d *DLL) RequestDataOnSimObject(h RawHandle, requestId, defineId, objectId uint32, period Period) int32 {
	return d.requestDataOnSimObject(uintptr(h), requestId, defineId, objectId, uint32(period), 0, 0, 0, 0)
}

// GetNextDispatch copies the record out of host memory. The host reuses the
// buffer on the next call, so the pointer must not escape this function.
func (d *DLL) GetNextDispatch(h RawHandle) ([]byte, int32) {
	var data *byte
	var size uint32
	hr := d.getNextDispatch(uintptr(h), &data, &size)
	if hr != 0 || data == nil || size == 0 {
		return nil, hr
	}

	record := make([]byte, size)
	copy(record, unsafe.Slice(data, size))
	return record, 0
}

func (d *DLL) SubscribeToSystemEvent(h RawHandle, eventId uint32, eventName []byte) int32 {
	return d.subscribeToSystemEvent(uintptr(h), eventId, cstr(eventName))
}

func (d *DLL) UnsubscribeFromSystemEvent(h RawHandle, eventId uint32) int32 {
	return d.unsubscribeFromEvent(uintptr(h), eventId)
}

func (d *DLL) RequestSystemState(h RawHandle, requestId uint32, state []byte) int32 {
	return d.requestSystemState(uintptr(h), requestId, cstr(state))
}
