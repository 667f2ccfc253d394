package vm

// Minimal wasm modules assembled by hand for the backend tests. All sizes and
// indices stay below 128, so every LEB128 value is a single byte.

const (
	valI32 = 0x7f
	valI64 = 0x7e
)

func wasmSection(id byte, content ...byte) []byte {
	if len(content) >= 0x80 {
		panic("section too large for single-byte length")
	}
	return append([]byte{id, byte(len(content))}, content...)
}

func wasmName(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func wasmFuncType(params, results []byte) []byte {
	out := []byte{0x60, byte(len(params))}
	out = append(out, params...)
	out = append(out, byte(len(results)))
	return append(out, results...)
}

func wasmVec(items ...[]byte) []byte {
	out := []byte{byte(len(items))}
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

type wasmImport struct {
	name    string
	typeIdx byte
}

// buildModule assembles a module with one memory page, host imports, and a
// single _start function of type typeIdx whose body is given.
func buildModule(types [][]byte, imports []wasmImport, startType byte, body []byte, data []byte) []byte {
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, wasmSection(1, wasmVec(types...)...)...)

	if len(imports) > 0 {
		entries := make([][]byte, len(imports))
		for i, imp := range imports {
			e := wasmName(HostModuleName)
			e = append(e, wasmName(imp.name)...)
			e = append(e, 0x00, imp.typeIdx)
			entries[i] = e
		}
		mod = append(mod, wasmSection(2, wasmVec(entries...)...)...)
	}

	mod = append(mod, wasmSection(3, 0x01, startType)...)
	mod = append(mod, wasmSection(5, 0x01, 0x00, 0x01)...)

	startIdx := byte(len(imports))
	memExport := append(wasmName("memory"), 0x02, 0x00)
	startExport := append(wasmName("_start"), 0x00, startIdx)
	mod = append(mod, wasmSection(7, wasmVec(memExport, startExport)...)...)

	fn := append([]byte{0x00}, body...)
	fn = append(fn, 0x0b)
	mod = append(mod, wasmSection(10, wasmVec(append([]byte{byte(len(fn))}, fn...))...)...)

	if len(data) > 0 {
		seg := []byte{0x00, 0x41, 0x00, 0x0b, byte(len(data))}
		seg = append(seg, data...)
		mod = append(mod, wasmSection(11, wasmVec(seg)...)...)
	}
	return mod
}

// commitModule commits the bytes "ok".
func commitModule() []byte {
	types := [][]byte{
		wasmFuncType([]byte{valI32, valI32}, nil),
		wasmFuncType(nil, nil),
	}
	body := []byte{
		0x41, 0x00, // i32.const 0
		0x41, 0x02, // i32.const 2
		0x10, 0x00, // call commit
	}
	return buildModule(types, []wasmImport{{"commit", 0}}, 1, body, []byte("ok"))
}

// echoModule copies the whole input blob to the journal.
func echoModule() []byte {
	types := [][]byte{
		wasmFuncType(nil, []byte{valI32}),
		wasmFuncType([]byte{valI32, valI32}, []byte{valI32}),
		wasmFuncType([]byte{valI32, valI32}, nil),
		wasmFuncType(nil, nil),
	}
	imports := []wasmImport{{"input_len", 0}, {"read_input", 1}, {"commit", 2}}
	body := []byte{
		0x41, 0x00, // i32.const 0
		0x10, 0x00, // call input_len
		0x10, 0x01, // call read_input
		0x1a,       // drop
		0x41, 0x00, // i32.const 0
		0x10, 0x00, // call input_len
		0x10, 0x02, // call commit
	}
	return buildModule(types, imports, 3, body, nil)
}

// cycleModule reads the cycle counter and discards it.
func cycleModule() []byte {
	types := [][]byte{
		wasmFuncType(nil, []byte{valI64}),
		wasmFuncType(nil, nil),
	}
	body := []byte{
		0x10, 0x00, // call cycle_count
		0x1a, // drop
	}
	return buildModule(types, []wasmImport{{"cycle_count", 0}}, 1, body, nil)
}

// abortModule calls abort(7).
func abortModule() []byte {
	types := [][]byte{
		wasmFuncType([]byte{valI32}, nil),
		wasmFuncType(nil, nil),
	}
	body := []byte{
		0x41, 0x07, // i32.const 7
		0x10, 0x00, // call abort
	}
	return buildModule(types, []wasmImport{{"abort", 0}}, 1, body, nil)
}

// trapModule executes unreachable.
func trapModule() []byte {
	return buildModule([][]byte{wasmFuncType(nil, nil)}, nil, 0, []byte{0x00}, nil)
}

// loopModule spins forever.
func loopModule() []byte {
	body := []byte{
		0x03, 0x40, // loop
		0x0c, 0x00, // br 0
		0x0b, // end
	}
	return buildModule([][]byte{wasmFuncType(nil, nil)}, nil, 0, body, nil)
}

// oobCommitModule commits a range past the end of memory.
func oobCommitModule() []byte {
	types := [][]byte{
		wasmFuncType([]byte{valI32, valI32}, nil),
		wasmFuncType(nil, nil),
	}
	body := []byte{
		0x41, 0x80, 0x80, 0x04, // i32.const 65536
		0x41, 0x10, // i32.const 16
		0x10, 0x00, // call commit
	}
	return buildModule(types, []wasmImport{{"commit", 0}}, 1, body, nil)
}
