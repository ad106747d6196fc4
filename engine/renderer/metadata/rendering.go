package metadata

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
	PrimitiveTopologyPointList
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

/**
 * @brief Fixed-function state of a graphics pipeline. Everything here can
 * change through a pipeline reset without touching the shader-derived layout.
 */
type FixedFunctionState struct {
	Topology         PrimitiveTopology
	SampleCount      uint32
	CullMode         FaceCullMode
	ViewportExtent   Extent2D
	BlendEnable      bool
	DepthTestEnable  bool
	DepthWriteEnable bool
	IsWireframe      bool
}

// DefaultFixedFunctionState returns opaque, depth-tested triangle rendering
// with back-face culling over the given viewport.
func DefaultFixedFunctionState(extent Extent2D) FixedFunctionState {
	return FixedFunctionState{
		Topology:         PrimitiveTopologyTriangleList,
		SampleCount:      1,
		CullMode:         FaceCullModeBack,
		ViewportExtent:   extent,
		DepthTestEnable:  true,
		DepthWriteEnable: true,
	}
}
