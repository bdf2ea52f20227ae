//go:build windows

package native

import (
	"golang.org/x/sys/windows"
)

func openSharedLibrary(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	return uintptr(h), err
}

func lookupSymbol(lib uintptr, name string) (uintptr, error) {
	return windows.GetProcAddress(windows.Handle(lib), name)
}

func closeSharedLibrary(lib uintptr) error {
	return windows.FreeLibrary(windows.Handle(lib))
}
