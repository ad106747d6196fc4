package metadata

import "math"

// InvalidHandle marks a handle that was never issued. Issued handles are
// dense indices starting at zero and never reach this value.
const InvalidHandle uint32 = math.MaxUint32

/** @brief Index of a texture in the bindless texture table. */
type TextureHandle uint32

/** @brief Index of a buffer in the bindless uniform and/or storage table. */
type BufferHandle uint32

/**
 * @brief Identifies a declared draw parameter record.
 *
 * The value is the byte offset of the record inside every per-frame
 * parameter buffer, so it can be passed as the dynamic offset directly.
 */
type DrawParamsHandle uint32

/** @brief Index of a graphics pipeline in the pipeline cache. */
type PipelineID uint32

const (
	InvalidTexture    = TextureHandle(InvalidHandle)
	InvalidBuffer     = BufferHandle(InvalidHandle)
	InvalidDrawParams = DrawParamsHandle(InvalidHandle)
	InvalidPipeline   = PipelineID(InvalidHandle)
)

func (h TextureHandle) IsValid() bool    { return h != InvalidTexture }
func (h BufferHandle) IsValid() bool     { return h != InvalidBuffer }
func (h DrawParamsHandle) IsValid() bool { return h != InvalidDrawParams }
func (id PipelineID) IsValid() bool      { return id != InvalidPipeline }
