package acquire

import (
	"os/exec"
	goruntime "runtime"
)

// detectAccelerator reports whether a compatible GPU is available.
//
// On macOS any Apple Silicon machine qualifies; elsewhere an NVIDIA GPU
// is probed via nvidia-smi. A missing or failing probe means no
// accelerator, never an error: the gate is advisory and user-overridable.
func detectAccelerator() bool {
	if goruntime.GOOS == "darwin" {
		return goruntime.GOARCH == "arm64"
	}

	out, err := exec.Command("nvidia-smi", "--list-gpus").Output()
	if err != nil {
		return false
	}
	return len(out) > 0
}
