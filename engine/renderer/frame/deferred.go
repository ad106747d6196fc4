package frame

import "github.com/spaghettifunk/bindless/engine/renderer/rhi"

// Deferred is a resource whose destruction waits until the GPU is done with
// the submission it was queued in. Only the types of this package implement it.
type Deferred interface {
	dispose(device rhi.ResourceDevice)
}

// DeferredImage releases a view and the image behind it. Either may be nil.
type DeferredImage struct {
	Image rhi.Image
	View  rhi.ImageView
}

func (d DeferredImage) dispose(device rhi.ResourceDevice) {
	if d.View != nil {
		device.DestroyImageView(d.View)
	}
	if d.Image != nil {
		device.DestroyImage(d.Image)
	}
}

type DeferredBuffer struct {
	Buffer rhi.Buffer
}

func (d DeferredBuffer) dispose(device rhi.ResourceDevice) {
	if d.Buffer != nil {
		device.DestroyBuffer(d.Buffer)
	}
}
