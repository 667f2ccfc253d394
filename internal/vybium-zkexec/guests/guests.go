// Package guests registers the guest programs shipped with the engine.
package guests

import (
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/guests/benchmark"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/guests/ed25519verify"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// Registry returns a registry holding every shipped guest.
func Registry() (*vm.Registry, error) {
	reg := vm.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Register adds every shipped guest to reg.
func Register(reg *vm.Registry) error {
	if _, err := reg.RegisterNative(ed25519verify.Program(), ed25519verify.Guest{}); err != nil {
		return err
	}
	if _, err := reg.RegisterNative(benchmark.Program(), benchmark.Guest{}); err != nil {
		return err
	}
	return nil
}

// Ed25519VerifyID is the identity of the signature verification guest.
func Ed25519VerifyID() vm.ImageID {
	return ed25519verify.Program().ID()
}

// BenchmarkID is the identity of the arithmetic benchmark guest.
func BenchmarkID() vm.ImageID {
	return benchmark.Program().ID()
}
