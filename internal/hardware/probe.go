// Package hardware detects the host capabilities that decide which engine
// variant to install.
package hardware

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/rs/zerolog"

	"enginectl/pkg/types"
)

// Tier is a CPU instruction set level understood by engine release names.
type Tier string

const (
	TierAVX    Tier = "AVX"
	TierAVX2   Tier = "AVX2"
	TierAVX512 Tier = "AVX512"
)

// Run modes and accelerator vendors used in install options.
const (
	RunModeCPU = "CPU"
	RunModeGPU = "GPU"
	GPUNvidia  = "Nvidia"
)

const acceleratorProbeTimeout = 5 * time.Second

// Capabilities is the result of a probe.
type Capabilities struct {
	Instructions   Tier
	HasAccelerator bool
}

// Probe queries the host. The zero value is not usable; call New.
type Probe struct {
	goos        string
	cpuTier     func() Tier
	accelerator func(ctx context.Context) bool
	log         zerolog.Logger
}

// New returns a probe for the running host.
func New(log zerolog.Logger) *Probe {
	return &Probe{goos: runtime.GOOS, cpuTier: cpuidTier, accelerator: nvidiaSMIPresent, log: log}
}

// Detect never fails: anything it cannot determine falls back to AVX and no
// accelerator.
func (p *Probe) Detect(ctx context.Context) Capabilities {
	caps := Capabilities{Instructions: TierAVX}
	if p.cpuTier != nil {
		if t := p.cpuTier(); t != "" {
			caps.Instructions = t
		}
	}
	// Apple silicon and Intel macs ship a single Metal/CPU build.
	if p.goos != "darwin" && p.accelerator != nil {
		caps.HasAccelerator = p.accelerator(ctx)
	}
	p.log.Debug().Str("instructions", string(caps.Instructions)).Bool("accelerator", caps.HasAccelerator).Msg("hardware detected")
	return caps
}

// DefaultOptions derives install options from Detect. On darwin the options
// stay empty.
func (p *Probe) DefaultOptions(ctx context.Context) types.InstallOptions {
	if p.goos == "darwin" {
		return types.InstallOptions{}
	}
	caps := p.Detect(ctx)
	opts := types.InstallOptions{RunMode: RunModeCPU, GPUType: GPUNvidia, Instructions: string(caps.Instructions)}
	if caps.HasAccelerator {
		opts.RunMode = RunModeGPU
	}
	return opts
}

func cpuidTier() Tier {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return TierAVX512
	case cpuid.CPU.Supports(cpuid.AVX2):
		return TierAVX2
	default:
		return TierAVX
	}
}

// nvidiaSMIPresent reports whether nvidia-smi exists and runs cleanly, which
// implies a working Nvidia driver.
func nvidiaSMIPresent(ctx context.Context) bool {
	bin, err := exec.LookPath("nvidia-smi")
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, acceleratorProbeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, bin).Run() == nil
}
