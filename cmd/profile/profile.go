// Package profile provides CPU and heap profiling for long-running commands.
package profile

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
)

const (
	// cpuProfileName is the name of the CPU profile within a profile
	// directory.
	cpuProfileName = "cpu.prof"
	// heapProfileName is the name of the heap profile within a profile
	// directory.
	heapProfileName = "heap.prof"
)

// Profile manages a CPU and heap profile.
type Profile struct {
	// directory is the directory into which profiles are written.
	directory string
	// cpuProfile is the output file for the CPU profile.
	cpuProfile *os.File
}

// New creates a new profile that writes into the specified directory, creating
// it if necessary. CPU profiling begins immediately.
func New(directory string) (*Profile, error) {
	// Ensure that the output directory exists.
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, errors.Wrap(err, "unable to create profile directory")
	}

	// Open the CPU profile output.
	cpuProfile, err := os.Create(filepath.Join(directory, cpuProfileName))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create CPU profile")
	}

	// Start CPU profiling.
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		cpuProfile.Close()
		return nil, errors.Wrap(err, "unable to start CPU profile")
	}

	// Success.
	return &Profile{
		directory:  directory,
		cpuProfile: cpuProfile,
	}, nil
}

// Finalize terminates a profile and writes the heap profile.
func (p *Profile) Finalize() error {
	// Close out the CPU profile.
	pprof.StopCPUProfile()
	if err := p.cpuProfile.Close(); err != nil {
		return errors.Wrap(err, "unable to close CPU profile")
	}

	// Run a GC cycle to update the heap profile statistics.
	runtime.GC()

	// Write a heap profile.
	heapProfile, err := os.Create(filepath.Join(p.directory, heapProfileName))
	if err != nil {
		return errors.Wrap(err, "unable to create heap profile")
	}
	if err := pprof.WriteHeapProfile(heapProfile); err != nil {
		heapProfile.Close()
		return errors.Wrap(err, "unable to write heap profile")
	}
	if err := heapProfile.Close(); err != nil {
		return errors.Wrap(err, "unable to close heap profile")
	}

	// Success.
	return nil
}
