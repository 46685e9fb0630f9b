//go:build !unix

package extractor

import "os/exec"

// configureProcess only bounds Wait; grandchildren may outlive a cancelled
// command here.
func configureProcess(cmd *exec.Cmd) {
	cmd.WaitDelay = waitDelay
}
