// ABOUTME: Builds the "env" module the codec links against
// ABOUTME: Re-exports host functions and defines the shared linear memory
package codec

import "github.com/tetratelabs/wazero/api"

// wazero host modules cannot define memory, so the codec's env imports are
// satisfied by a tiny generated module that imports the host functions and
// re-exports them alongside a memory of fixed size.

const (
	sectionType   = 1
	sectionImport = 2
	sectionMemory = 5
	sectionExport = 7

	externFunc   = 0x00
	externMemory = 0x02

	funcTypeTag  = 0x60
	limitsMinMax = 0x01
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

type signature struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func appendName(b []byte, name string) []byte {
	b = appendU32(b, uint32(len(name)))
	return append(b, name...)
}

func appendSection(b []byte, id byte, content []byte) []byte {
	b = append(b, id)
	b = appendU32(b, uint32(len(content)))
	return append(b, content...)
}

func appendFuncType(b []byte, params, results []api.ValueType) []byte {
	b = append(b, funcTypeTag)
	b = appendU32(b, uint32(len(params)))
	for _, p := range params {
		b = append(b, p)
	}
	b = appendU32(b, uint32(len(results)))
	for _, r := range results {
		b = append(b, r)
	}
	return b
}

// buildEnvShim encodes a module importing every signature from host and
// re-exporting it under the same name. memoryPages > 0 also defines and
// exports "memory" with min == max == memoryPages.
func buildEnvShim(host string, sigs []signature, memoryPages uint32) []byte {
	var types, imports, exports []byte

	types = appendU32(types, uint32(len(sigs)))
	imports = appendU32(imports, uint32(len(sigs)))

	exportCount := len(sigs)
	if memoryPages > 0 {
		exportCount++
	}
	exports = appendU32(exports, uint32(exportCount))

	for i, s := range sigs {
		types = appendFuncType(types, s.params, s.results)

		imports = appendName(imports, host)
		imports = appendName(imports, s.name)
		imports = append(imports, externFunc)
		imports = appendU32(imports, uint32(i))

		exports = appendName(exports, s.name)
		exports = append(exports, externFunc)
		exports = appendU32(exports, uint32(i))
	}

	out := append([]byte{}, wasmHeader...)
	out = appendSection(out, sectionType, types)
	out = appendSection(out, sectionImport, imports)

	if memoryPages > 0 {
		mem := appendU32(nil, 1)
		mem = append(mem, limitsMinMax)
		mem = appendU32(mem, memoryPages)
		mem = appendU32(mem, memoryPages)
		out = appendSection(out, sectionMemory, mem)

		exports = appendName(exports, "memory")
		exports = append(exports, externMemory)
		exports = appendU32(exports, 0)
	}

	return appendSection(out, sectionExport, exports)
}
