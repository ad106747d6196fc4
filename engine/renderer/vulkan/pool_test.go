package vulkan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockPoolSerializesGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(PipelineManagement, func() error {
				counter++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error {
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestLockPoolReturnsCallError(t *testing.T) {
	pool := NewVulkanLockPool()
	err := pool.SafeCall(DescriptorManagement, func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	// unknown families get a mutex on first use
	assert.NoError(t, pool.SafeQueueCall(7, func() error { return nil }))
}
