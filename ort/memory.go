package ort

import (
	"fmt"
	"runtime"
)

// CreateMemoryInfo creates a memory info structure with specified parameters.
// Maps to OrtApi::CreateMemoryInfo in the ONNX Runtime C API.
func CreateMemoryInfo(name string, allocatorType AllocatorType, deviceID int, memType MemType) (*MemoryInfo, error) {
	mu.Lock()
	defer mu.Unlock()

	if createMemoryInfoFunc == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	// Convert the name string to C string
	nameBytes, namePtr := GoToCstring(name)
	defer runtime.KeepAlive(nameBytes)

	var handle uintptr
	// #nosec G115 -- deviceID is validated by ONNX Runtime, conversion is safe
	status := createMemoryInfoFunc(namePtr, allocatorType, int32(deviceID), memType, &handle)
	if status != 0 {
		errMsg := getErrorMessage(status)
		releaseStatus(status)
		return nil, fmt.Errorf("failed to create memory info: %s", errMsg)
	}

	memInfo := &MemoryInfo{
		handle:        handle,
		name:          name,
		memType:       memType,
		allocatorType: allocatorType,
		deviceID:      deviceID,
	}

	// Set finalizer to ensure cleanup even if Destroy() is not called
	runtime.SetFinalizer(memInfo, func(m *MemoryInfo) {
		_ = m.Destroy()
	})

	return memInfo, nil
}

// CreateCpuMemoryInfo creates a memory info structure for CPU memory.
// This is a convenience function for the most common use case.
func CreateCpuMemoryInfo(allocatorType AllocatorType, memType MemType) (*MemoryInfo, error) {
	return CreateMemoryInfo("Cpu", allocatorType, 0, memType)
}

// Destroy releases the memory info resources.
// Maps to OrtApi::ReleaseMemoryInfo in the ONNX Runtime C API.
func (m *MemoryInfo) Destroy() error {
	mu.Lock()
	defer mu.Unlock()

	if m.handle == 0 {
		return nil
	}

	if releaseMemoryInfoFunc != nil {
		releaseMemoryInfoFunc(m.handle)
	}

	m.handle = 0
	runtime.SetFinalizer(m, nil)
	return nil
}

// GetName returns the name of the memory allocator
func (m *MemoryInfo) GetName() string {
	return m.name
}

// GetMemType returns the memory type
func (m *MemoryInfo) GetMemType() MemType {
	return m.memType
}

// GetAllocatorType returns the allocator type
func (m *MemoryInfo) GetAllocatorType() AllocatorType {
	return m.allocatorType
}

// GetDeviceID returns the device ID
func (m *MemoryInfo) GetDeviceID() int {
	return m.deviceID
}

// IsValid returns true if the memory info has a valid handle.
func (m *MemoryInfo) IsValid() bool {
	return m.handle != 0
}

// gpuBufferAllocatorName is the allocator name ONNX Runtime associates with
// WebGPU device buffers.
const gpuBufferAllocatorName = "WebGPU_Buffer"

// memoryInfoHandle creates a raw memory info handle without the finalizer
// wrapper. The returned release func must be called once the handle is no
// longer needed.
func memoryInfoHandle(name string, allocatorType AllocatorType, deviceID int32, memType MemType) (uintptr, func(), error) {
	mu.Lock()
	createMemoryInfo := createMemoryInfoFunc
	releaseMemoryInfo := releaseMemoryInfoFunc
	mu.Unlock()

	if createMemoryInfo == nil || releaseMemoryInfo == nil {
		return 0, nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	nameBytes, namePtr := GoToCstring(name)
	var handle uintptr
	status := createMemoryInfo(namePtr, allocatorType, deviceID, memType, &handle)
	runtime.KeepAlive(nameBytes)
	if status != 0 {
		return 0, nil, statusError("failed to create memory info", status)
	}
	return handle, func() { releaseMemoryInfo(handle) }, nil
}

// cpuMemoryInfoHandle describes host-owned CPU buffers handed to the engine.
func cpuMemoryInfoHandle() (uintptr, func(), error) {
	return memoryInfoHandle("Cpu", AllocatorTypeDevice, 0, MemTypeDefault)
}

// gpuBufferMemoryInfoHandle describes device buffers for GPU-resident tensors.
func gpuBufferMemoryInfoHandle() (uintptr, func(), error) {
	return memoryInfoHandle(gpuBufferAllocatorName, AllocatorTypeDevice, 0, MemTypeDefault)
}
