package pipeline

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
)

// CompatibilityHash identifies the content of one descriptor set together
// with the push constant ranges of its pipeline. Two pipelines with the same
// hash at a set can share whatever is bound there.
type CompatibilityHash uint64

// HashSetLayout computes 64-bit FNV-1a over the semantic fields of the
// bindings followed by the push constant ranges, each field as a
// little-endian uint32 in declaration order. Struct memory is never hashed,
// so padding and field layout cannot leak into the result.
func HashSetLayout(bindings []metadata.DescriptorBinding, pushConstants []metadata.PushConstantRange) CompatibilityHash {
	h := fnv.New64a()
	var word [4]byte
	write := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		h.Write(word[:])
	}
	for _, b := range bindings {
		write(b.Binding)
		write(uint32(b.Type))
		write(b.Count)
		write(uint32(b.Stages))
	}
	for _, r := range pushConstants {
		write(uint32(r.Stages))
		write(r.Offset)
		write(r.Size)
	}
	return CompatibilityHash(h.Sum64())
}
