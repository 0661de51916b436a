package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCPUCoreMask(t *testing.T) {

	assert.Equal(t, uintptr(0), CPUCoreMask(nil))
	assert.Equal(t, uintptr(0b00001111), CPUCoreMask([]int{0, 1, 2, 3}))
	assert.Equal(t, uintptr(0b11110000), CPUCoreMask([]int{4, 5, 6, 7}))
	assert.Equal(t, uintptr(0b00100010), CPUCoreMask([]int{1, 5}))
}
