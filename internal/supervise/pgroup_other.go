//go:build !unix

package supervise

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// Without process groups only the leader can be signalled.
func terminateGroup(p *os.Process) error {
	return killGroup(p)
}

func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
