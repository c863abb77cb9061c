package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInstallGlobalTracerProviderIsOneShot(t *testing.T) {
	first := sdktrace.NewTracerProvider()
	second := sdktrace.NewTracerProvider()

	require.True(t, InstallGlobalTracerProvider(first),
		"first install with a concrete provider must win")
	assert.Same(t, first, otel.GetTracerProvider())

	assert.False(t, InstallGlobalTracerProvider(second),
		"subsequent installs must be no-ops")
	assert.Same(t, first, otel.GetTracerProvider())

	assert.False(t, InstallGlobalTracerProvider(nil))
	assert.Same(t, first, otel.GetTracerProvider())
}
