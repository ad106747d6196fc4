package core

const AVG_COUNT uint8 = 30

type rollingAverage struct {
	counter uint8
	samples [AVG_COUNT]float64
	avg     float64
}

func (r *rollingAverage) add(sample float64) {
	r.samples[r.counter] = sample
	if r.counter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += r.samples[i]
		}
		r.avg = sum / float64(AVG_COUNT)
	}
	r.counter++
	r.counter %= AVG_COUNT
}

// Metrics collects per-frame statistics of the renderer. It is owned by the
// thread driving the frame loop and is not safe for concurrent use.
type Metrics struct {
	frameTime          rollingAverage
	fenceWait          rollingAverage
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	SubmittedFrames   uint64
	DisposedResources uint64
	IssuedBinds       uint64
	SkippedBinds      uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// FrameUpdate records the elapsed time of the last frame, in seconds.
func (m *Metrics) FrameUpdate(frameElapsedTime float64) {
	frameMS := frameElapsedTime * 1000.0
	m.frameTime.add(frameMS)

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
	m.SubmittedFrames++
}

// FenceWaitUpdate records how long the CPU blocked on a ring fence, in seconds.
func (m *Metrics) FenceWaitUpdate(waitTime float64) {
	m.fenceWait.add(waitTime * 1000.0)
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.frameTime.avg
}

func (m *Metrics) FenceWaitTime() float64 {
	return m.fenceWait.avg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.frameTime.avg
}
