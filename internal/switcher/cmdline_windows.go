//go:build windows

package switcher

import (
	"os/exec"
	"syscall"
)

// cmd.exe does its own parsing, the command line must reach it untouched.
func setWindowsCommandLine(cmd *exec.Cmd, command string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine: `cmd.exe /d /s /c "` + command + `"`,
	}
}
