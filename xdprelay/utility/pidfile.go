// xdprelay/utility/pidfile.go
package utility

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// PidFile records the running instance of a role.
type PidFile struct {
	Path string
}

// CreatePidFile writes our pid to path. It refuses when the file names a
// live process other than us; a stale file is overwritten.
func CreatePidFile(path string) (*PidFile, error) {
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		pid, perr := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
		if perr == nil && int(pid) != os.Getpid() {
			alive, err := process.PidExists(int32(pid))
			if err != nil {
				return nil, fmt.Errorf("check pid %d from %s: %w", pid, path, err)
			}
			if alive {
				return nil, fmt.Errorf("%s: already running as pid %d", path, pid)
			}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read pid file: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PidFile{Path: path}, nil
}

func (p *PidFile) Remove() error {
	err := os.Remove(p.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
