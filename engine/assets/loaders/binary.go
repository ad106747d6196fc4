package loaders

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
)

type BinaryLoader struct{}

// Load reads the whole file. params may carry a map with a "name" entry;
// otherwise the file name without extension is used.
func (bl *BinaryLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		name = p["name"]
	}

	return &metadata.Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (bl *BinaryLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}
