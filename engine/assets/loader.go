package assets

import "github.com/spaghettifunk/bindless/engine/renderer/metadata"

type Loader interface {
	Load(path string, params interface{}) (*metadata.Resource, error)
	Unload(*metadata.Resource) error
}
