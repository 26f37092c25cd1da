//go:build !windows

package processstate

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// IsProcessRunning reports whether pid refers to a live process. A zombie
// (exited but not yet reaped) counts as not running.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}

	err = process.Signal(syscall.Signal(0))
	if err != nil {
		if err == os.ErrProcessDone {
			return false, nil
		}
		errno, ok := err.(syscall.Errno)
		if !ok {
			return false, err
		}
		switch errno {
		case syscall.ESRCH:
			return false, nil
		case syscall.EPERM:
			return true, nil
		}
		return false, err
	}

	return !isZombie(pid), nil
}

// isZombie inspects /proc where available; elsewhere it reports false.
func isZombie(pid int) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...; comm may contain spaces or parens.
	end := bytes.LastIndexByte(data, ')')
	if end < 0 || end+2 >= len(data) {
		return false
	}
	return data[end+2] == 'Z'
}
