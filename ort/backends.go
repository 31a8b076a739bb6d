package ort

import (
	"fmt"
	"unsafe"
)

// Backend describes an execution backend the binding can route to. Bundled
// reports whether the backend ships with the default runtime library or needs
// a provider-specific build.
type Backend struct {
	Name    string
	Bundled bool
}

// extraBackends is populated by the ortbackend_* build-tagged files.
var extraBackends []Backend

// backendOrder fixes the report order of non-CPU backends.
var backendOrder = map[string]int{
	"dml":      0,
	"webgpu":   1,
	"cuda":     2,
	"tensorrt": 3,
	"coreml":   4,
	"qnn":      5,
}

func registerBackend(name string, bundled bool) {
	extraBackends = append(extraBackends, Backend{Name: name, Bundled: bundled})
}

// ListSupportedBackends returns the backends this build of the binding can
// offer. The CPU backend is always first and always available; the rest
// follow in the fixed backend order.
func ListSupportedBackends() []Backend {
	backends := make([]Backend, 0, 1+len(extraBackends))
	backends = append(backends, Backend{Name: "cpu", Bundled: true})

	for rank := 0; rank < len(backendOrder); rank++ {
		for _, b := range extraBackends {
			if r, known := backendOrder[b.Name]; known && r == rank {
				backends = append(backends, b)
			}
		}
	}
	for _, b := range extraBackends {
		if _, known := backendOrder[b.Name]; !known {
			backends = append(backends, b)
		}
	}
	return backends
}

// AvailableProviders asks the loaded runtime library which execution
// providers it was built with. Requires an initialized environment.
func AvailableProviders() ([]string, error) {
	mu.Lock()
	getProviders := getAvailableProvidersFunc
	releaseProviders := releaseAvailableProvidersFunc
	mu.Unlock()
	if getProviders == nil || releaseProviders == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var providersPtr uintptr
	var count int32
	if status := getProviders(&providersPtr, &count); status != 0 {
		return nil, statusError("failed to get available providers", status)
	}
	if count <= 0 || providersPtr == 0 {
		return nil, nil
	}

	// #nosec G103 -- providersPtr points at count contiguous char pointers owned by the runtime.
	raw := unsafe.Slice((*uintptr)(unsafe.Pointer(providersPtr)), count)
	providers := make([]string, count)
	for i, p := range raw {
		providers[i] = CstringToGo(p)
	}

	if status := releaseProviders(providersPtr, count); status != 0 {
		return nil, statusError("failed to release provider list", status)
	}
	return providers, nil
}
