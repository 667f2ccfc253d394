// Package vm provides the isolated execution engine: program images and their
// identities, the guest environment, and the native and WebAssembly backends.
package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/codec"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/core"
)

// Engine errors.
var (
	ErrUnknownImage      = errors.New("vm: unknown program image")
	ErrDuplicateImage    = errors.New("vm: program image already registered")
	ErrInvalidProgram    = errors.New("vm: invalid program image")
	ErrMalformedInput    = errors.New("vm: malformed input")
	ErrGuestFailed       = errors.New("vm: guest failed")
	ErrGuestPanicked     = errors.New("vm: guest panicked")
	ErrResourceExhausted = errors.New("vm: resource exhausted")
	ErrJournalFull       = errors.New("vm: journal limit reached")
)

// ImageID is the identity of a program image.
type ImageID = core.Digest

// ParseImageID decodes a hex image identity.
func ParseImageID(s string) (ImageID, error) {
	return core.ParseDigest(s)
}

// Kind selects the backend that runs a program image.
type Kind uint8

const (
	KindNative Kind = iota + 1
	KindWasm
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindWasm:
		return "wasm"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Program is an immutable program image. For native guests Code is a
// canonical descriptor of the Go entry point; for wasm guests it is the module.
type Program struct {
	Name    string
	Kind    Kind
	Version string
	Code    []byte
}

// NewNativeProgram describes a Go guest. entry names the guest implementation;
// changing any field changes the identity.
func NewNativeProgram(name, version, entry string) *Program {
	code, err := codec.Encode("go-native", name, version, entry)
	if err != nil {
		// Only strings are encoded.
		panic(err)
	}
	return &Program{Name: name, Kind: KindNative, Version: version, Code: code}
}

// NewWasmProgram wraps a WebAssembly module.
func NewWasmProgram(name, version string, module []byte) *Program {
	return &Program{
		Name:    name,
		Kind:    KindWasm,
		Version: version,
		Code:    append([]byte(nil), module...),
	}
}

// ID computes the image identity over kind, name, version and code.
func (p *Program) ID() ImageID {
	return core.HashParts([]byte(p.Kind.String()), []byte(p.Name), []byte(p.Version), p.Code)
}

// Validate checks that the image is well-formed.
func (p *Program) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil program", ErrInvalidProgram)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidProgram)
	}
	if p.Kind != KindNative && p.Kind != KindWasm {
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidProgram, p.Kind)
	}
	if len(p.Code) == 0 {
		return fmt.Errorf("%w: empty code", ErrInvalidProgram)
	}
	return nil
}

func (p *Program) String() string {
	return fmt.Sprintf("%s/%s@%s", p.Kind, p.Name, p.Version)
}

type registration struct {
	program *Program
	guest   Guest
}

// Registry maps image identities to runnable programs. It is safe for
// concurrent use; registered images never change.
type Registry struct {
	mu     sync.RWMutex
	images map[ImageID]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{images: make(map[ImageID]registration)}
}

// RegisterNative binds a Go guest to a native program image.
func (r *Registry) RegisterNative(p *Program, g Guest) (ImageID, error) {
	if err := p.Validate(); err != nil {
		return ImageID{}, err
	}
	if p.Kind != KindNative {
		return ImageID{}, fmt.Errorf("%w: %s is not a native image", ErrInvalidProgram, p)
	}
	if g == nil {
		return ImageID{}, fmt.Errorf("%w: nil guest for %s", ErrInvalidProgram, p)
	}
	return r.add(p, g)
}

// RegisterWasm registers a WebAssembly program image.
func (r *Registry) RegisterWasm(p *Program) (ImageID, error) {
	if err := p.Validate(); err != nil {
		return ImageID{}, err
	}
	if p.Kind != KindWasm {
		return ImageID{}, fmt.Errorf("%w: %s is not a wasm image", ErrInvalidProgram, p)
	}
	return r.add(p, nil)
}

func (r *Registry) add(p *Program, g Guest) (ImageID, error) {
	id := p.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.images[id]; ok {
		return id, fmt.Errorf("%w: %s (%s)", ErrDuplicateImage, p, id)
	}
	r.images[id] = registration{program: p, guest: g}
	return id, nil
}

// Lookup returns the program and, for native images, its guest.
func (r *Registry) Lookup(id ImageID) (*Program, Guest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.images[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownImage, id)
	}
	return reg.program, reg.guest, nil
}

// IDByName returns the identity of the registered image with the given name.
func (r *Registry) IDByName(name string) (ImageID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, reg := range r.images {
		if reg.program.Name == name {
			return id, true
		}
	}
	return ImageID{}, false
}

// Programs lists registered images sorted by name.
func (r *Registry) Programs() []*Program {
	r.mu.RLock()
	out := make([]*Program, 0, len(r.images))
	for _, reg := range r.images {
		out = append(out, reg.program)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
