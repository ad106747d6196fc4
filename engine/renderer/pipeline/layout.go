package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

/**
 * @brief A compiled shader stage ready to be used by a pipeline.
 */
type ShaderInstance struct {
	Module     rhi.ShaderModule
	Reflection *metadata.ShaderReflection
	/** @brief Values of specialization constants, by constant id. */
	Specialization map[uint32]uint32
}

func (s ShaderInstance) name() string {
	if s.Reflection == nil {
		return "<unreflected>"
	}
	return s.Reflection.Name
}

// resolveCount returns the array length of b for this instance. A length
// driven by a specialization constant without a value stays unresolved (0).
func (s ShaderInstance) resolveCount(b metadata.ReflectedBinding) uint32 {
	if b.CountSpecID == nil {
		return b.Count
	}
	if v, ok := s.Specialization[*b.CountSpecID]; ok {
		return v
	}
	return 0
}

func (s ShaderInstance) stageBindings(stage metadata.ShaderStage) [][]metadata.DescriptorBinding {
	if s.Reflection == nil {
		return nil
	}
	sets := make([][]metadata.DescriptorBinding, len(s.Reflection.Sets))
	for set, bindings := range s.Reflection.Sets {
		for _, b := range bindings {
			sets[set] = append(sets[set], metadata.DescriptorBinding{
				Binding: b.Binding,
				Type:    b.Type,
				Count:   s.resolveCount(b),
				Stages:  stage,
			})
		}
	}
	return sets
}

// MergeBindings combines the per-set bindings of the vertex and fragment
// stages. A binding declared by both stages becomes one entry visible to
// both; each set ends up sorted by binding number.
func MergeBindings(vertex, fragment ShaderInstance) ([][]metadata.DescriptorBinding, error) {
	vertexSets := vertex.stageBindings(metadata.ShaderStageVertex)
	fragmentSets := fragment.stageBindings(metadata.ShaderStageFragment)

	merged := make([][]metadata.DescriptorBinding, max(len(vertexSets), len(fragmentSets)))
	for set := range merged {
		var bindings []metadata.DescriptorBinding
		if set < len(vertexSets) {
			bindings = append(bindings, vertexSets[set]...)
		}
		if set < len(fragmentSets) {
			for _, fb := range fragmentSets[set] {
				i := slices.IndexFunc(bindings, func(b metadata.DescriptorBinding) bool {
					return b.Binding == fb.Binding
				})
				if i < 0 {
					bindings = append(bindings, fb)
					continue
				}
				existing := &bindings[i]
				if existing.Type != fb.Type {
					return nil, fmt.Errorf("set %d binding %d is %s in %s but %s in %s: %w",
						set, fb.Binding, existing.Type, vertex.name(), fb.Type, fragment.name(), core.ErrUnsupportedPipelineState)
				}
				existing.Stages |= fb.Stages
				if existing.Count != 0 && fb.Count != 0 {
					existing.Count = max(existing.Count, fb.Count)
				} else {
					existing.Count = 0
				}
			}
		}
		slices.SortFunc(bindings, func(a, b metadata.DescriptorBinding) int {
			return int(a.Binding) - int(b.Binding)
		})
		if err := validateSet(set, bindings); err != nil {
			return nil, err
		}
		merged[set] = bindings
	}
	return merged, nil
}

func validateSet(set int, bindings []metadata.DescriptorBinding) error {
	for i, b := range bindings {
		if i > 0 && bindings[i-1].Binding == b.Binding {
			return fmt.Errorf("set %d declares binding %d twice: %w", set, b.Binding, core.ErrUnsupportedPipelineState)
		}
		// only the highest binding of a set may have a variable count
		if b.IsVariableCount() && i != len(bindings)-1 {
			return fmt.Errorf("set %d binding %d has a variable count but is not the last binding: %w",
				set, b.Binding, core.ErrUnsupportedPipelineState)
		}
	}
	return nil
}

// CombinePushConstantRanges lists the vertex ranges followed by the fragment ranges.
func CombinePushConstantRanges(vertex, fragment ShaderInstance) []metadata.PushConstantRange {
	var ranges []metadata.PushConstantRange
	if vertex.Reflection != nil {
		ranges = append(ranges, vertex.Reflection.PushConstants...)
	}
	if fragment.Reflection != nil {
		ranges = append(ranges, fragment.Reflection.PushConstants...)
	}
	return ranges
}

type vertexInput struct {
	attributes []rhi.VertexAttributeDesc
	stride     uint32
}

// buildVertexInput packs the vertex shader inputs, in location order, into
// one interleaved vertex binding.
func buildVertexInput(vertex ShaderInstance) vertexInput {
	if vertex.Reflection == nil {
		return vertexInput{}
	}
	attrs := slices.Clone(vertex.Reflection.VertexAttributes)
	slices.SortFunc(attrs, func(a, b metadata.VertexAttribute) int {
		return int(a.Location) - int(b.Location)
	})

	in := vertexInput{attributes: make([]rhi.VertexAttributeDesc, 0, len(attrs))}
	for _, a := range attrs {
		in.attributes = append(in.attributes, rhi.VertexAttributeDesc{
			Location: a.Location,
			Format:   a.Format,
			Offset:   in.stride,
		})
		in.stride += a.Format.Size()
	}
	return in
}

// FormatLayout renders a merged layout for diagnostics.
func FormatLayout(sets [][]metadata.DescriptorBinding, pushConstants []metadata.PushConstantRange) string {
	var sb strings.Builder
	for set, bindings := range sets {
		fmt.Fprintf(&sb, "set %d:", set)
		if len(bindings) == 0 {
			sb.WriteString(" (empty)")
		}
		for _, b := range bindings {
			sb.WriteString(" ")
			sb.WriteString(b.String())
		}
		sb.WriteString("\n")
	}
	sb.WriteString("push constants:")
	if len(pushConstants) == 0 {
		sb.WriteString(" (none)")
	}
	for _, r := range pushConstants {
		sb.WriteString(" ")
		sb.WriteString(r.String())
	}
	return sb.String()
}
