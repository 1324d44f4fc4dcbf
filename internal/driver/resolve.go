package driver

import (
	"os"
	"path/filepath"

	"firestige.xyz/s2onet/internal/core"
)

// resolvePath picks the library path: the override if set, then the
// executable's directory, then the bare name for the OS search path.
func resolvePath(abi ABI, exeDir func() (string, error)) (string, error) {
	if abi.LibraryOverride != "" {
		if !fileExists(abi.LibraryOverride) {
			return "", &core.LoadError{Path: abi.LibraryOverride, Err: core.ErrNotFound}
		}
		return abi.LibraryOverride, nil
	}

	if abi.LibraryName == "" {
		return "", &core.LoadError{Err: core.ErrNotFound}
	}
	if filepath.IsAbs(abi.LibraryName) {
		return abi.LibraryName, nil
	}

	if exeDir != nil {
		if dir, err := exeDir(); err == nil && dir != "" {
			candidate := filepath.Join(dir, abi.LibraryName)
			if fileExists(candidate) {
				return candidate, nil
			}
		}
	}

	return abi.LibraryName, nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
