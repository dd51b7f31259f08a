package fuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMountManagerStartsUnmounted(t *testing.T) {
	e, _ := testEngine(t)
	mm := NewMountManager(e, t.TempDir())
	assert.False(t, mm.IsMounted())
}

func TestUnmountWithoutMountErrors(t *testing.T) {
	e, _ := testEngine(t)
	mm := NewMountManager(e, t.TempDir())
	err := mm.Unmount()
	assert.Error(t, err)
}

func TestWaitWithoutMountDoesNotBlock(t *testing.T) {
	e, _ := testEngine(t)
	mm := NewMountManager(e, t.TempDir())
	mm.Wait() // server is nil; must return immediately rather than hang
}
