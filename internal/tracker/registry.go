package tracker

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var installOnce sync.Once

// InstallGlobalTracerProvider installs tp as the process-wide default tracer
// provider exactly once. Later calls are no-ops regardless of argument, so
// downstream code referencing the default provider sees a stable value. A nil
// provider still consumes the one-shot slot without installing anything,
// leaving the existing default in place.
//
// Returns true when this call performed the installation.
func InstallGlobalTracerProvider(tp trace.TracerProvider) bool {
	installed := false
	installOnce.Do(func() {
		if tp != nil {
			otel.SetTracerProvider(tp)
			installed = true
		}
	})
	return installed
}
