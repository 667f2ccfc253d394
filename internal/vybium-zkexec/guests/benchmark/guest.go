// Package benchmark is the guest that measures Edwards25519 arithmetic with
// the two-pass protocol. It reads nothing and commits nothing; its output is
// the measurement samples.
package benchmark

import (
	"strings"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/vm"
)

const (
	Name    = "ed25519-benchmark"
	Version = "1.0.0"
)

// Constants are written big-endian, as in most references, and converted to
// the little-endian encodings edwards25519 expects.
const (
	scalarX = "0x2a3f714fcddea4984f228c4d1dbd41a79b470b1546c68f6bb268a04aa0394bac"
	scalarY = "0x98973615f3b819529d885bbed9a69bc66a678d00289a8b1f3a0ff19801c10cdd"
	fieldX  = "0xec08eac2cbcefe58e61038dca45ba2b4a56bdf05a3595ebee1bcfc488889c1cf"
	fieldY  = "0x9fc3e90d2fad03c8669f437a26374fa694ca76a7913c5e016322ebaa5c7616c5"
)

// Program returns the image of this guest.
func Program() *vm.Program {
	return vm.NewNativeProgram(Name, Version, "benchmark.Guest")
}

// littleEndian parses a big-endian hex constant into 32 little-endian bytes.
func littleEndian(hex string) []byte {
	be := uint256.MustFromHex(hex).Bytes32()
	le := make([]byte, 32)
	for i := range be {
		le[i] = be[31-i]
	}
	return le
}

// scalarFromHex reduces a 256-bit constant modulo the group order.
func scalarFromHex(hex string) *edwards25519.Scalar {
	wide := make([]byte, 64)
	copy(wide, littleEndian(hex))
	s, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		panic(err)
	}
	return s
}

// fieldFromHex loads a constant as a field element. The top bit is ignored
// and values above the modulus are reduced.
func fieldFromHex(hex string) *field.Element {
	e, err := new(field.Element).SetBytes(littleEndian(hex))
	if err != nil {
		panic(err)
	}
	return e
}

// ScalarSuite measures scalar field arithmetic.
func ScalarSuite() bench.Suite {
	x := bench.BlackBox(scalarFromHex(scalarX))
	y := bench.BlackBox(scalarFromHex(scalarY))
	z := edwards25519.NewScalar()

	return bench.Suite{
		Name: "Scalar operations",
		Ops: []bench.Op{
			{Label: "add", Fn: func() any { return z.Add(x, y) }},
			{Label: "mul", Fn: func() any { return z.Multiply(x, y) }},
			{Label: "square", Fn: func() any { return z.Multiply(x, x) }},
			{Label: "negate", Fn: func() any { return z.Negate(x) }},
			{Label: "invert", Fn: func() any { return z.Invert(x) }},
		},
	}
}

// GroupSuite measures the double scalar multiplication that dominates
// signature verification.
func GroupSuite() bench.Suite {
	x := bench.BlackBox(scalarFromHex(scalarX))
	y := bench.BlackBox(scalarFromHex(scalarX))
	base := edwards25519.NewGeneratorPoint()
	p := new(edwards25519.Point)

	return bench.Suite{
		Name: "Group operations",
		Ops: []bench.Op{
			{Label: "vartime_double_scalar_mul_basepoint", Fn: func() any {
				return p.VarTimeDoubleScalarBaseMult(x, base, y)
			}},
		},
	}
}

// FieldSuite measures base field arithmetic. Like the other suites it writes
// every result into one destination allocated up front.
func FieldSuite() bench.Suite {
	x := bench.BlackBox(fieldFromHex(fieldX))
	y := bench.BlackBox(fieldFromHex(fieldY))
	z := new(field.Element)

	return bench.Suite{
		Name: "Field operations",
		Ops: []bench.Op{
			{Label: "add", Fn: func() any { return z.Add(x, y) }},
			{Label: "mul", Fn: func() any { return z.Multiply(x, y) }},
			{Label: "mul_single", Fn: func() any { return z.Mult32(x, 42) }},
			{Label: "square", Fn: func() any { return z.Square(x) }},
			{Label: "negate", Fn: func() any { return z.Negate(x) }},
			{Label: "invert", Fn: func() any { return z.Invert(x) }},
		},
	}
}

// Suites returns every suite in report order.
func Suites() []bench.Suite {
	return []bench.Suite{FieldSuite(), ScalarSuite(), GroupSuite()}
}

// Guest runs every suite against the session counter.
type Guest struct{}

// Run implements vm.Guest.
func (Guest) Run(env vm.Env) error {
	for _, suite := range Suites() {
		for _, sample := range suite.Run(env) {
			env.Report(bench.Sample{Label: suite.Name + "/" + sample.Label, Cycles: sample.Cycles})
		}
	}
	return nil
}

// Section is the samples of one suite, in measurement order.
type Section struct {
	Name    string
	Samples []bench.Sample
}

// Sections splits session samples reported by Guest back into suites.
func Sections(samples []bench.Sample) []Section {
	var out []Section
	for _, s := range samples {
		suite, label, ok := strings.Cut(s.Label, "/")
		if !ok {
			suite, label = "", s.Label
		}
		if len(out) == 0 || out[len(out)-1].Name != suite {
			out = append(out, Section{Name: suite})
		}
		last := &out[len(out)-1]
		last.Samples = append(last.Samples, bench.Sample{Label: label, Cycles: s.Cycles})
	}
	return out
}
