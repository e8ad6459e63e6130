//go:build !windows

package switcher

import "os/exec"

// Only reachable when a test forces the windows profile on another system.
func setWindowsCommandLine(cmd *exec.Cmd, command string) {
	cmd.Args = append(cmd.Args, "/d", "/s", "/c", command)
}
