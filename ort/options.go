package ort

import (
	"fmt"
	"runtime"
)

// SessionOptions wraps a native OrtSessionOptions handle.
type SessionOptions struct {
	handle uintptr
}

// NewSessionOptions creates an empty native session options handle.
func NewSessionOptions() (*SessionOptions, error) {
	mu.Lock()
	create := createSessionOptionsFunc
	mu.Unlock()
	if create == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var handle uintptr
	if status := create(&handle); status != 0 {
		return nil, statusError("failed to create session options", status)
	}

	o := &SessionOptions{handle: handle}
	runtime.SetFinalizer(o, func(o *SessionOptions) {
		_ = o.Destroy()
	})
	return o, nil
}

// Destroy releases the native session options handle.
func (o *SessionOptions) Destroy() error {
	if o == nil {
		return nil
	}
	mu.Lock()
	handle := o.handle
	release := releaseSessionOptionsFunc
	o.handle = 0
	runtime.SetFinalizer(o, nil)
	mu.Unlock()

	if handle != 0 && release != nil {
		release(handle)
	}
	return nil
}

// setInt32 applies a (handle, int32) setter from the registered table.
func (o *SessionOptions) setInt32(setter func(uintptr, int32) uintptr, what string, v int32) error {
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	if status := setter(o.handle, v); status != 0 {
		return statusError("failed to set "+what, status)
	}
	return nil
}

// setFlag applies a no-argument toggle from the registered table.
func (o *SessionOptions) setFlag(setter func(uintptr) uintptr, what string) error {
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	if status := setter(o.handle); status != 0 {
		return statusError("failed to set "+what, status)
	}
	return nil
}

func (o *SessionOptions) SetGraphOptimizationLevel(level GraphOptimizationLevel) error {
	mu.Lock()
	setter := setSessionGraphOptimizationLevelFunc
	mu.Unlock()
	return o.setInt32(setter, "graph optimization level", int32(level))
}

func (o *SessionOptions) SetExecutionMode(mode ExecutionMode) error {
	mu.Lock()
	setter := setSessionExecutionModeFunc
	mu.Unlock()
	return o.setInt32(setter, "execution mode", int32(mode))
}

func (o *SessionOptions) SetIntraOpNumThreads(n int) error {
	mu.Lock()
	setter := setIntraOpNumThreadsFunc
	mu.Unlock()
	// #nosec G115 -- thread counts are validated by the caller.
	return o.setInt32(setter, "intra-op thread count", int32(n))
}

func (o *SessionOptions) SetInterOpNumThreads(n int) error {
	mu.Lock()
	setter := setInterOpNumThreadsFunc
	mu.Unlock()
	// #nosec G115 -- thread counts are validated by the caller.
	return o.setInt32(setter, "inter-op thread count", int32(n))
}

func (o *SessionOptions) SetLogSeverityLevel(level int) error {
	mu.Lock()
	setter := setSessionLogSeverityLevelFunc
	mu.Unlock()
	// #nosec G115 -- severity levels are in [0, 4].
	return o.setInt32(setter, "log severity level", int32(level))
}

func (o *SessionOptions) SetLogVerbosityLevel(level int) error {
	mu.Lock()
	setter := setSessionLogVerbosityLevelFunc
	mu.Unlock()
	// #nosec G115 -- verbosity levels are small non-negative ints.
	return o.setInt32(setter, "log verbosity level", int32(level))
}

func (o *SessionOptions) SetLogID(id string) error {
	mu.Lock()
	setter := setSessionLogIdFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	idBytes, idPtr := GoToCstring(id)
	status := setter(o.handle, idPtr)
	runtime.KeepAlive(idBytes)
	if status != 0 {
		return statusError("failed to set log id", status)
	}
	return nil
}

// SetOptimizedModelFilePath makes session creation write the optimized graph
// to the given path.
func (o *SessionOptions) SetOptimizedModelFilePath(path string) error {
	mu.Lock()
	setter := setOptimizedModelFilePathFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	pathPtr, pathBacking, err := goStringToORTChar(path)
	if err != nil {
		return fmt.Errorf("failed to encode optimized model path: %w", err)
	}
	status := setter(o.handle, pathPtr)
	runtime.KeepAlive(pathBacking)
	if status != 0 {
		return statusError("failed to set optimized model file path", status)
	}
	return nil
}

// EnableProfiling turns on profiling with the given output file prefix.
func (o *SessionOptions) EnableProfiling(prefix string) error {
	mu.Lock()
	setter := enableProfilingFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	prefixPtr, prefixBacking, err := goStringToORTChar(prefix)
	if err != nil {
		return fmt.Errorf("failed to encode profile file prefix: %w", err)
	}
	status := setter(o.handle, prefixPtr)
	runtime.KeepAlive(prefixBacking)
	if status != 0 {
		return statusError("failed to enable profiling", status)
	}
	return nil
}

func (o *SessionOptions) DisableProfiling() error {
	mu.Lock()
	setter := disableProfilingFunc
	mu.Unlock()
	return o.setFlag(setter, "profiling off")
}

func (o *SessionOptions) EnableMemPattern() error {
	mu.Lock()
	setter := enableMemPatternFunc
	mu.Unlock()
	return o.setFlag(setter, "memory pattern on")
}

func (o *SessionOptions) DisableMemPattern() error {
	mu.Lock()
	setter := disableMemPatternFunc
	mu.Unlock()
	return o.setFlag(setter, "memory pattern off")
}

func (o *SessionOptions) EnableCpuMemArena() error {
	mu.Lock()
	setter := enableCpuMemArenaFunc
	mu.Unlock()
	return o.setFlag(setter, "CPU memory arena on")
}

func (o *SessionOptions) DisableCpuMemArena() error {
	mu.Lock()
	setter := disableCpuMemArenaFunc
	mu.Unlock()
	return o.setFlag(setter, "CPU memory arena off")
}

// AddFreeDimensionOverrideByName fixes a named free dimension to a concrete
// value before graph optimization.
func (o *SessionOptions) AddFreeDimensionOverrideByName(name string, value int64) error {
	mu.Lock()
	setter := addFreeDimensionOverrideByNameFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	nameBytes, namePtr := GoToCstring(name)
	status := setter(o.handle, namePtr, value)
	runtime.KeepAlive(nameBytes)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to override free dimension %q", name), status)
	}
	return nil
}

// AddFreeDimensionOverride fixes every free dimension carrying the given
// denotation to a concrete value before graph optimization.
func (o *SessionOptions) AddFreeDimensionOverride(denotation string, value int64) error {
	mu.Lock()
	setter := addFreeDimensionOverrideFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	denotationBytes, denotationPtr := GoToCstring(denotation)
	status := setter(o.handle, denotationPtr, value)
	runtime.KeepAlive(denotationBytes)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to override free dimensions denoted %q", denotation), status)
	}
	return nil
}

// AddConfigEntry sets an opaque session configuration key/value pair.
func (o *SessionOptions) AddConfigEntry(key, value string) error {
	mu.Lock()
	setter := addSessionConfigEntryFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	keyBytes, keyPtr := GoToCstring(key)
	valueBytes, valuePtr := GoToCstring(value)
	status := setter(o.handle, keyPtr, valuePtr)
	runtime.KeepAlive(keyBytes)
	runtime.KeepAlive(valueBytes)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to add config entry %q", key), status)
	}
	return nil
}

// AppendExecutionProvider registers an execution provider by name with
// optional provider-specific options.
func (o *SessionOptions) AppendExecutionProvider(name string, providerOptions map[string]string) error {
	mu.Lock()
	appendEP := sessionOptionsAppendExecutionProviderFunc
	mu.Unlock()
	if appendEP == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	nameBytes, namePtr := GoToCstring(name)

	var keyBackings, valueBackings [][]byte
	var keyPtrs, valuePtrs []uintptr
	for k, v := range providerOptions {
		keyBacking, keyPtr := GoToCstring(k)
		valueBacking, valuePtr := GoToCstring(v)
		keyBackings = append(keyBackings, keyBacking)
		valueBackings = append(valueBackings, valueBacking)
		keyPtrs = append(keyPtrs, keyPtr)
		valuePtrs = append(valuePtrs, valuePtr)
	}

	var keysPtr, valuesPtr *uintptr
	if len(keyPtrs) > 0 {
		keysPtr = &keyPtrs[0]
		valuesPtr = &valuePtrs[0]
	}

	status := appendEP(o.handle, namePtr, keysPtr, valuesPtr, uintptr(len(keyPtrs)))
	runtime.KeepAlive(nameBytes)
	runtime.KeepAlive(keyBackings)
	runtime.KeepAlive(valueBackings)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to append execution provider %q", name), status)
	}
	return nil
}

// RunOptions wraps a native OrtRunOptions handle.
type RunOptions struct {
	handle uintptr
}

// NewRunOptions creates an empty native run options handle.
func NewRunOptions() (*RunOptions, error) {
	mu.Lock()
	create := createRunOptionsFunc
	mu.Unlock()
	if create == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var handle uintptr
	if status := create(&handle); status != 0 {
		return nil, statusError("failed to create run options", status)
	}

	o := &RunOptions{handle: handle}
	runtime.SetFinalizer(o, func(o *RunOptions) {
		_ = o.Destroy()
	})
	return o, nil
}

// Destroy releases the native run options handle.
func (o *RunOptions) Destroy() error {
	if o == nil {
		return nil
	}
	mu.Lock()
	handle := o.handle
	release := releaseRunOptionsFunc
	o.handle = 0
	runtime.SetFinalizer(o, nil)
	mu.Unlock()

	if handle != 0 && release != nil {
		release(handle)
	}
	return nil
}

func (o *RunOptions) SetLogSeverityLevel(level int) error {
	mu.Lock()
	setter := runOptionsSetRunLogSeverityLevelFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	// #nosec G115 -- severity levels are in [0, 4].
	if status := setter(o.handle, int32(level)); status != 0 {
		return statusError("failed to set run log severity level", status)
	}
	return nil
}

func (o *RunOptions) SetLogVerbosityLevel(level int) error {
	mu.Lock()
	setter := runOptionsSetRunLogVerbosityLevelFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	// #nosec G115 -- verbosity levels are small non-negative ints.
	if status := setter(o.handle, int32(level)); status != 0 {
		return statusError("failed to set run log verbosity level", status)
	}
	return nil
}

// SetTag sets the run tag used to identify this run in logs.
func (o *RunOptions) SetTag(tag string) error {
	mu.Lock()
	setter := runOptionsSetRunTagFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	tagBytes, tagPtr := GoToCstring(tag)
	status := setter(o.handle, tagPtr)
	runtime.KeepAlive(tagBytes)
	if status != 0 {
		return statusError("failed to set run tag", status)
	}
	return nil
}

// SetTerminate flags all runs using these options to terminate as soon as
// possible.
func (o *RunOptions) SetTerminate() error {
	mu.Lock()
	setter := runOptionsSetTerminateFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	if status := setter(o.handle); status != 0 {
		return statusError("failed to set terminate flag", status)
	}
	return nil
}

// UnsetTerminate clears the terminate flag so the options can be reused.
func (o *RunOptions) UnsetTerminate() error {
	mu.Lock()
	setter := runOptionsUnsetTerminateFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	if status := setter(o.handle); status != 0 {
		return statusError("failed to unset terminate flag", status)
	}
	return nil
}

// AddConfigEntry sets an opaque per-run configuration key/value pair.
func (o *RunOptions) AddConfigEntry(key, value string) error {
	mu.Lock()
	setter := addRunConfigEntryFunc
	mu.Unlock()
	if setter == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	keyBytes, keyPtr := GoToCstring(key)
	valueBytes, valuePtr := GoToCstring(value)
	status := setter(o.handle, keyPtr, valuePtr)
	runtime.KeepAlive(keyBytes)
	runtime.KeepAlive(valueBytes)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to add run config entry %q", key), status)
	}
	return nil
}
