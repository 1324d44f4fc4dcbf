//go:build !windows

package driver

import "firestige.xyz/s2onet/internal/core"

type unsupportedLoader struct{}

// DefaultLoader returns the platform loader. The capture driver only exists
// on Windows, so elsewhere every load reports core.ErrNotFound.
func DefaultLoader() Loader {
	return unsupportedLoader{}
}

func (unsupportedLoader) Load(path string, _ Symbols) (Binding, error) {
	return nil, &core.LoadError{Path: path, Err: core.ErrNotFound}
}
