//go:build !windows && !darwin && !linux

package native

import (
	goerrs "errors"
)

var errUnsupportedPlatform = goerrs.New("dynamic library loading is not supported on this platform")

func openSharedLibrary(path string) (uintptr, error) {
	return 0, errUnsupportedPlatform
}

func lookupSymbol(lib uintptr, name string) (uintptr, error) {
	return 0, errUnsupportedPlatform
}

func closeSharedLibrary(lib uintptr) error {
	return errUnsupportedPlatform
}
