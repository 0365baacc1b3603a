package device

import (
	"github.com/csotherden/luminal/device/cpu"
	"github.com/csotherden/luminal/device/cuda"
	"github.com/csotherden/luminal/device/metal"
)

// Default probes Metal, then CUDA, then falls back to CPU, which is always
// available. Off-Darwin or without the cuda build tag, the corresponding
// probe always fails immediately and costs nothing beyond a single error
// check.
func Default() Backend {
	if m, err := metal.New(); err == nil {
		return m
	}
	if c, err := cuda.New(); err == nil {
		return c
	}
	return cpu.New()
}
