package testbed

import (
	"bytes"
	"encoding/binary"

	"github.com/spaghettifunk/bindless/engine/math"
)

// encode lays out fixed-size values little-endian, as shaders read them.
func encode(v interface{}) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// mul returns a*b for column-major matrices.
func mul(a, b math.Mat4) math.Mat4 {
	var out math.Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a.Data[k*4+row] * b.Data[col*4+k]
			}
			out.Data[col*4+row] = sum
		}
	}
	return out
}
