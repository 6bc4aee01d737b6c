//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op on Windows (no Setsid equivalent).
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals returns the signals that stop a foreground server.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// sigTERM has no graceful equivalent on Windows; the process is killed.
func sigTERM() syscall.Signal { return syscall.SIGKILL }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
