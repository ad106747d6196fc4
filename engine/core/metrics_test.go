package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAveragesFrameTime(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.FrameUpdate(0.010)
	}

	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.Equal(t, uint64(AVG_COUNT), m.SubmittedFrames)
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 64 frames of 1/64s fill one second; the 65th crosses it
	for i := 0; i < 65; i++ {
		m.FrameUpdate(1.0 / 64)
	}
	fps, _ := m.Frame()
	assert.Equal(t, 64.0, fps)
}

func TestMetricsFenceWait(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.FenceWaitUpdate(0.002)
	}
	assert.InDelta(t, 2.0, m.FenceWaitTime(), 1e-9)
}
