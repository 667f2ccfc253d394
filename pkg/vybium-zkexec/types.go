package vybiumzkexec

import (
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/protocols"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/utils"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

// ImageID is the content digest that identifies a guest program
type ImageID = vm.ImageID

// Program is a guest image: a name, a version and the code the ID is taken over
type Program = vm.Program

// Guest is the computation a native program runs
type Guest = vm.Guest

// GuestFunc adapts a function to Guest
type GuestFunc = vm.GuestFunc

// Env is the guest's view of its session
type Env = vm.Env

// Session is the result of one guest run
type Session = vm.Session

// ExitStatus is how a guest run ended
type ExitStatus = vm.ExitStatus

// Receipt attests that a program halted and produced a journal
type Receipt = protocols.Receipt

// Claim is the public statement a receipt attests
type Claim = protocols.Claim

// Config represents configuration for the execution engine
type Config = utils.Config

// Counter is a monotonically increasing cycle source
type Counter = bench.Counter

// Sample is one labelled measurement
type Sample = bench.Sample

const (
	ExitHalted         = vm.ExitHalted
	ExitGuestFailed    = vm.ExitGuestFailed
	ExitMalformedInput = vm.ExitMalformedInput
)

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return utils.DefaultConfig()
}

// LoadConfig reads a YAML config file over the defaults
func LoadConfig(path string) (*Config, error) {
	config, err := utils.LoadConfig(path)
	if err != nil {
		return nil, &Error{Code: ErrInvalidConfig, Message: "failed to load config", Cause: err}
	}
	return config, nil
}

// ParseImageID parses a hex encoded image identity
func ParseImageID(s string) (ImageID, error) {
	id, err := vm.ParseImageID(s)
	if err != nil {
		return ImageID{}, &Error{Code: ErrMalformedInput, Message: "invalid image identity", Cause: err}
	}
	return id, nil
}

// NewNativeProgram describes a Go guest. The entry string is part of the identity.
func NewNativeProgram(name, version, entry string) *Program {
	return vm.NewNativeProgram(name, version, entry)
}

// NewWasmProgram describes a WebAssembly guest
func NewWasmProgram(name, version string, module []byte) *Program {
	return vm.NewWasmProgram(name, version, module)
}

// MarshalReceipt encodes a receipt as canonical JSON
func MarshalReceipt(r *Receipt) ([]byte, error) {
	data, err := protocols.MarshalReceipt(r)
	if err != nil {
		return nil, &Error{Code: ErrMalformedInput, Message: "cannot encode receipt", Cause: err}
	}
	return data, nil
}

// UnmarshalReceipt decodes a receipt produced by MarshalReceipt
func UnmarshalReceipt(data []byte) (*Receipt, error) {
	r, err := protocols.UnmarshalReceipt(data)
	if err != nil {
		return nil, verificationError(err)
	}
	return r, nil
}
