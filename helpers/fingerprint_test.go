package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceFingerprintStable(t *testing.T) {
	a := DeviceFingerprint("Mozilla/5.0", "10.0.0.1", "en-US")
	b := DeviceFingerprint("Mozilla/5.0", "10.0.0.1", "en-US")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestDeviceFingerprintVariesWithInput(t *testing.T) {
	base := DeviceFingerprint("Mozilla/5.0", "10.0.0.1", "en-US")
	assert.NotEqual(t, base, DeviceFingerprint("Mozilla/5.0", "10.0.0.2", "en-US"))
	assert.NotEqual(t, base, DeviceFingerprint("curl/8.0", "10.0.0.1", "en-US"))
	assert.NotEqual(t, base, DeviceFingerprint("Mozilla/5.0", "10.0.0.1", "sw-KE"))
}
