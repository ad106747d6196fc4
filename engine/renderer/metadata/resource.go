package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Files the asset manager does not track. */
	ResourceTypeNone ResourceType = iota
	/** @brief Binary resource type. */
	ResourceTypeBinary
	/** @brief Compiled shader stage with its reflection manifest. */
	ResourceTypeShader
	/** @brief Engine configuration file. */
	ResourceTypeConfig
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeBinary:
		return "binary"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeConfig:
		return "config"
	}
	return "none"
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
