// Package daemon is the pid-file process control surface: enough to find a
// running trader, ask whether it is alive, and deliver a clean stop signal.
package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// WritePid records the current process in path, refusing to clobber a live
// instance. A stale file left by a crashed process is overwritten.
func WritePid(path string) error {
	if pid, running, err := Status(path); err != nil {
		return err
	} else if running {
		return fmt.Errorf("already running (pid %d)", pid)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

// Remove deletes the pid file; missing is fine.
func Remove(path string) {
	_ = os.Remove(path)
}

// Status reports the recorded pid and whether that process is alive. A
// missing pid file means not running, not an error.
func Status(path string) (pid int, running bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read pid file %s: %w", path, err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("pid file %s is corrupt: %w", path, err)
	}
	return pid, alive(pid), nil
}

// Stop sends SIGTERM to the recorded process; the trader's signal handler
// turns that into a coordinator stop.
func Stop(path string) error {
	pid, running, err := Status(path)
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("not running")
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
