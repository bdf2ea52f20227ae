//go:build darwin || linux

package native

import (
	"github.com/ebitengine/purego"
)

func openSharedLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func lookupSymbol(lib uintptr, name string) (uintptr, error) {
	return purego.Dlsym(lib, name)
}

func closeSharedLibrary(lib uintptr) error {
	return purego.Dlclose(lib)
}
