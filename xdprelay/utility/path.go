// xdprelay/utility/path.go
package utility

import (
	"os"
	"path/filepath"
)

// GetProjectRoot returns the directory holding the running executable.
func GetProjectRoot() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// ObjectDir is where the role objects are installed next to the binaries.
func ObjectDir() (string, error) {
	root, err := GetProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "bpf"), nil
}
