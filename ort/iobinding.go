package ort

import (
	"fmt"
	"runtime"
	"unsafe"
)

// IoBinding wraps a native OrtIoBinding tied to one session. It lets outputs
// be routed to a device of choice instead of always materializing on the CPU.
type IoBinding struct {
	handle uintptr
}

// newIoBinding creates an I/O binding for the given native session handle.
func newIoBinding(session uintptr) (*IoBinding, error) {
	mu.Lock()
	create := createIoBindingFunc
	mu.Unlock()
	if create == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var handle uintptr
	if status := create(session, &handle); status != 0 {
		return nil, statusError("failed to create I/O binding", status)
	}

	b := &IoBinding{handle: handle}
	runtime.SetFinalizer(b, func(b *IoBinding) {
		_ = b.Destroy()
	})
	return b, nil
}

// BindInput binds a named input to an existing OrtValue.
func (b *IoBinding) BindInput(name string, value uintptr) error {
	mu.Lock()
	bind := bindInputFunc
	mu.Unlock()
	if bind == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	nameBytes, namePtr := GoToCstring(name)
	status := bind(b.handle, namePtr, value)
	runtime.KeepAlive(nameBytes)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to bind input %q", name), status)
	}
	return nil
}

// BindOutputToDevice binds a named output to a device described by a memory
// info handle, letting the engine allocate it there.
func (b *IoBinding) BindOutputToDevice(name string, memInfo uintptr) error {
	mu.Lock()
	bind := bindOutputToDeviceFunc
	mu.Unlock()
	if bind == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	nameBytes, namePtr := GoToCstring(name)
	status := bind(b.handle, namePtr, memInfo)
	runtime.KeepAlive(nameBytes)
	if status != 0 {
		return statusError(fmt.Sprintf("failed to bind output %q", name), status)
	}
	return nil
}

// BoundOutputValues returns the OrtValues produced by the last bound run, in
// binding order. Ownership of the values transfers to the caller.
func (b *IoBinding) BoundOutputValues() ([]uintptr, error) {
	mu.Lock()
	getAllocator := getAllocatorWithDefaultOptionsFunc
	getValues := getBoundOutputValuesFunc
	free := allocatorFreeFunc
	mu.Unlock()
	if getAllocator == nil || getValues == nil || free == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var allocator uintptr
	if status := getAllocator(&allocator); status != 0 {
		return nil, statusError("failed to get default allocator", status)
	}

	var valuesPtr uintptr
	var count uintptr
	if status := getValues(b.handle, allocator, &valuesPtr, &count); status != 0 {
		return nil, statusError("failed to get bound output values", status)
	}
	if count == 0 || valuesPtr == 0 {
		return nil, nil
	}

	// The engine hands back an allocator-owned array of OrtValue pointers;
	// copy it out and free the array itself.
	// #nosec G103 -- valuesPtr points at count contiguous pointers owned by the allocator.
	raw := unsafe.Slice((*uintptr)(unsafe.Pointer(valuesPtr)), count)
	values := make([]uintptr, count)
	copy(values, raw)
	if status := free(allocator, valuesPtr); status != 0 {
		releaseErr := statusError("failed to free bound output array", status)
		for _, v := range values {
			releaseOrtValue(v)
		}
		return nil, releaseErr
	}

	return values, nil
}

// ClearBoundInputs drops all input bindings.
func (b *IoBinding) ClearBoundInputs() {
	mu.Lock()
	clearFn := clearBoundInputsFunc
	mu.Unlock()
	if clearFn != nil {
		clearFn(b.handle)
	}
}

// ClearBoundOutputs drops all output bindings.
func (b *IoBinding) ClearBoundOutputs() {
	mu.Lock()
	clearFn := clearBoundOutputsFunc
	mu.Unlock()
	if clearFn != nil {
		clearFn(b.handle)
	}
}

// Destroy releases the native binding handle.
func (b *IoBinding) Destroy() error {
	if b == nil {
		return nil
	}
	mu.Lock()
	handle := b.handle
	release := releaseIoBindingFunc
	b.handle = 0
	runtime.SetFinalizer(b, nil)
	mu.Unlock()

	if handle != 0 && release != nil {
		release(handle)
	}
	return nil
}
