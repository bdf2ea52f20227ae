package native

import (
	"sync"

	"github.com/sessamekesh/simconnect-bridge/pkg/errors"
	"github.com/sessamekesh/simconnect-bridge/pkg/wire"
	"go.uber.org/zap"
)

// Handle is one open host connection shared between the facade and the
// dispatch loop. The mutex is held for exactly one native call at a time.
type Handle struct {
	lib         Library
	programName string
	log         *zap.Logger

	mut_raw  sync.Mutex
	raw      RawHandle
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

func Open(lib Library, programName string, log *zap.Logger) (*Handle, error) {
	if log == nil {
		log = zap.Must(zap.NewDevelopment())
	}

	name, err := wire.EncodeString(programName)
	if err != nil {
		return nil, &errors.ConnectionFailed{ProgramName: programName, Cause: err}
	}

	raw, hr := lib.Open(name)
	if hr != 0 {
		return nil, &errors.ConnectionFailed{
			ProgramName: programName,
			Cause:       &errors.HostCallFailed{Call: "Open", Code: hr},
		}
	}

	log.Info("Opened host connection", zap.String("program", programName))

	return &Handle{
		lib:         lib,
		programName: programName,
		log:         log,
		mut_raw:     sync.Mutex{},
		raw:         raw,
	}, nil
}

func (h *Handle) ProgramName() string {
	return h.programName
}

// Call runs fn with exclusive access to the native handle. A non-zero status
// from fn is returned as HostCallFailed tagged with the given call name.
func (h *Handle) Call(call string, fn func(lib Library, raw RawHandle) int32) error {
	h.mut_raw.Lock()
	defer h.mut_raw.Unlock()

	if h.released {
		return errors.ErrHandleClosed
	}

	if hr := fn(h.lib, h.raw); hr != 0 {
		return &errors.HostCallFailed{Call: call, Code: hr}
	}
	return nil
}

// Poll fetches at most one queued record. The second return is false when
// the host had nothing queued. Any status other than an empty queue is
// returned as HostCallFailed.
func (h *Handle) Poll() ([]byte, bool, error) {
	h.mut_raw.Lock()
	defer h.mut_raw.Unlock()

	if h.released {
		return nil, false, errors.ErrHandleClosed
	}

	record, hr := h.lib.GetNextDispatch(h.raw)
	switch {
	case hr == HResult_Fail:
		return nil, false, nil
	case hr != 0:
		return nil, false, &errors.HostCallFailed{Call: "GetNextDispatch", Code: hr}
	case len(record) == 0:
		return nil, false, nil
	}
	return record, true, nil
}

// Close releases the native handle. Only the first call reaches the host;
// later calls return the first call's result.
func (h *Handle) Close() error {
	h.releaseOnce.Do(func() {
		h.mut_raw.Lock()
		defer h.mut_raw.Unlock()

		h.released = true
		if hr := h.lib.Close(h.raw); hr != 0 {
			h.releaseErr = &errors.HostCallFailed{Call: "Close", Code: hr}
			h.log.Warn("Host rejected close", zap.Error(h.releaseErr))
			return
		}
		h.log.Info("Closed host connection", zap.String("program", h.programName))
	})
	return h.releaseErr
}
