package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
)

const (
	ShaderExtension     = ".spv"
	ReflectionExtension = ".reflect.toml"
)

/**
 * @brief A compiled shader stage and what reflection found in it.
 */
type ShaderSource struct {
	Code       []byte
	Reflection *metadata.ShaderReflection
}

type reflectedAttribute struct {
	Location uint32 `toml:"location"`
	Format   string `toml:"format"`
}

type reflectedPushConstant struct {
	// Stages defaults to the stage of the shader.
	Stages []string `toml:"stages"`
	Offset uint32   `toml:"offset"`
	Size   uint32   `toml:"size"`
}

type reflectedBinding struct {
	Set         uint32  `toml:"set"`
	Binding     uint32  `toml:"binding"`
	Type        string  `toml:"type"`
	Count       uint32  `toml:"count"`
	CountSpecID *uint32 `toml:"count_spec_id"`
}

type reflectionManifest struct {
	Name                    string                  `toml:"name"`
	Stage                   string                  `toml:"stage"`
	EntryPoint              string                  `toml:"entry_point"`
	SpecializationConstants []uint32                `toml:"specialization_constants"`
	VertexAttributes        []reflectedAttribute    `toml:"vertex_attributes"`
	PushConstants           []reflectedPushConstant `toml:"push_constants"`
	Bindings                []reflectedBinding      `toml:"bindings"`
}

type ShaderLoader struct{}

// ShaderPath returns where the bytecode of a stage lives under dir.
func ShaderPath(dir, name string, stage metadata.ShaderStage) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", name, stage, ShaderExtension))
}

// ReflectionPath returns the manifest that sits next to a .spv file.
func ReflectionPath(shaderPath string) string {
	return strings.TrimSuffix(shaderPath, ShaderExtension) + ReflectionExtension
}

// Load reads a .spv file and its reflection manifest. The resource data is
// a *ShaderSource.
func (sl *ShaderLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	manifest, err := os.ReadFile(ReflectionPath(path))
	if err != nil {
		return nil, err
	}
	reflection, err := ParseReflection(manifest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReflectionPath(path), err)
	}

	return &metadata.Resource{
		Name:     reflection.Name,
		FullPath: path,
		DataSize: uint64(len(code)),
		Data: &ShaderSource{
			Code:       code,
			Reflection: reflection,
		},
	}, nil
}

func (sl *ShaderLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}

// ParseReflection decodes a reflection manifest. Bindings end up grouped by
// set and sorted by binding number.
func ParseReflection(data []byte) (*metadata.ShaderReflection, error) {
	var m reflectionManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode reflection: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("reflection has no name")
	}
	stage, err := metadata.ShaderStageFromString(m.Stage)
	if err != nil {
		return nil, err
	}

	r := &metadata.ShaderReflection{
		Name:                    m.Name,
		Stage:                   stage,
		EntryPoint:              m.EntryPoint,
		SpecializationConstants: m.SpecializationConstants,
	}

	for _, a := range m.VertexAttributes {
		format, err := metadata.VertexFormatFromString(a.Format)
		if err != nil {
			return nil, err
		}
		r.VertexAttributes = append(r.VertexAttributes, metadata.VertexAttribute{
			Location: a.Location,
			Format:   format,
		})
	}

	for _, p := range m.PushConstants {
		stages := stage
		if len(p.Stages) > 0 {
			stages = 0
			for _, s := range p.Stages {
				st, err := metadata.ShaderStageFromString(s)
				if err != nil {
					return nil, err
				}
				stages |= st
			}
		}
		r.PushConstants = append(r.PushConstants, metadata.PushConstantRange{
			Stages: stages,
			Offset: p.Offset,
			Size:   p.Size,
		})
	}

	for _, b := range m.Bindings {
		t, err := metadata.DescriptorTypeFromString(b.Type)
		if err != nil {
			return nil, err
		}
		if b.CountSpecID != nil && !slices.Contains(m.SpecializationConstants, *b.CountSpecID) {
			return nil, fmt.Errorf("set %d binding %d sized by undeclared specialization constant %d", b.Set, b.Binding, *b.CountSpecID)
		}
		for uint32(len(r.Sets)) <= b.Set {
			r.Sets = append(r.Sets, nil)
		}
		for _, existing := range r.Sets[b.Set] {
			if existing.Binding == b.Binding {
				return nil, fmt.Errorf("set %d declares binding %d twice", b.Set, b.Binding)
			}
		}
		r.Sets[b.Set] = append(r.Sets[b.Set], metadata.ReflectedBinding{
			Binding:     b.Binding,
			Type:        t,
			Count:       b.Count,
			CountSpecID: b.CountSpecID,
		})
	}
	for _, set := range r.Sets {
		slices.SortFunc(set, func(a, b metadata.ReflectedBinding) int {
			return int(a.Binding) - int(b.Binding)
		})
	}
	return r, nil
}
