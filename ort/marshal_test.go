package ort

import (
	"errors"
	"math"
	"strings"
	"testing"
	"unsafe"
)

func float32Bytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		bits := math.Float32bits(v)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func installMemoryInfoFakes(t *testing.T) *[]string {
	t.Helper()
	names := &[]string{}
	mu.Lock()
	createMemoryInfoFunc = func(name uintptr, allocatorType AllocatorType, deviceID int32, memType MemType, out *uintptr) uintptr {
		*names = append(*names, CstringToGo(name))
		*out = 7
		return 0
	}
	releaseMemoryInfoFunc = func(handle uintptr) {}
	mu.Unlock()
	return names
}

func TestTensorToOrtValueCPU(t *testing.T) {
	defer resetEnvironmentState()
	memNames := installMemoryInfoFakes(t)

	var gotElementType TensorElementDataType
	var gotByteLen uintptr
	var gotDims []int64
	mu.Lock()
	createTensorWithDataAsOrtValueFunc = func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, out *uintptr) uintptr {
		gotElementType = elementType
		gotByteLen = dataLen
		gotDims = append([]int64(nil), unsafe.Slice(shape, shapeLen)...)
		*out = 9
		return 0
	}
	mu.Unlock()

	tensor, err := NewDenseTensor(TensorElementDataTypeFloat, Shape{2, 2}, float32Bytes([]float32{1, 2, 3, 4}))
	if err != nil {
		t.Fatalf("failed to build tensor: %v", err)
	}

	handle, cleanup, err := tensorToOrtValue(tensor)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	defer cleanup()

	if handle != 9 {
		t.Errorf("expected handle 9, got %d", handle)
	}
	if gotElementType != TensorElementDataTypeFloat {
		t.Errorf("expected float element type, got %s", gotElementType)
	}
	if gotByteLen != 16 {
		t.Errorf("expected 16 bytes, got %d", gotByteLen)
	}
	if len(gotDims) != 2 || gotDims[0] != 2 || gotDims[1] != 2 {
		t.Errorf("expected dims [2 2], got %v", gotDims)
	}
	if len(*memNames) != 1 || (*memNames)[0] != "Cpu" {
		t.Errorf("expected a Cpu memory info, got %v", *memNames)
	}
}

func TestTensorToOrtValueGPUBuffer(t *testing.T) {
	defer resetEnvironmentState()
	memNames := installMemoryInfoFakes(t)

	var gotData uintptr
	mu.Lock()
	createTensorWithDataAsOrtValueFunc = func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, out *uintptr) uintptr {
		gotData = data
		*out = 11
		return 0
	}
	mu.Unlock()

	tensor, err := NewGPUDenseTensor(TensorElementDataTypeFloat, Shape{4}, 0xdead0, 16)
	if err != nil {
		t.Fatalf("failed to build tensor: %v", err)
	}

	handle, cleanup, err := tensorToOrtValue(tensor)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	defer cleanup()

	if handle != 11 {
		t.Errorf("expected handle 11, got %d", handle)
	}
	if gotData != 0xdead0 {
		t.Errorf("expected the device buffer pointer to be passed through, got %#x", gotData)
	}
	if len(*memNames) != 1 || (*memNames)[0] != gpuBufferAllocatorName {
		t.Errorf("expected a %s memory info, got %v", gpuBufferAllocatorName, *memNames)
	}
}

func TestTensorToOrtValueValidation(t *testing.T) {
	defer resetEnvironmentState()
	installMemoryInfoFakes(t)
	mu.Lock()
	createTensorWithDataAsOrtValueFunc = func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, out *uintptr) uintptr {
		*out = 1
		return 0
	}
	mu.Unlock()

	_, _, err := tensorToOrtValue(nil)
	if err == nil || !strings.Contains(err.Error(), "tensor is nil") {
		t.Fatalf("expected nil tensor error, got: %v", err)
	}
	var typeErr *TypeError
	if !errors.As(err, &typeErr) {
		t.Errorf("expected a *TypeError, got %T", err)
	}

	// A CPU tensor whose byte length disagrees with its shape.
	bad := &rawLengthTensor{dims: Shape{4}, raw: make([]byte, 12)}
	_, _, err = tensorToOrtValue(bad)
	if err == nil || !strings.Contains(err.Error(), "byte length mismatch") {
		t.Fatalf("expected byte length mismatch, got: %v", err)
	}
	if !errors.As(err, &typeErr) {
		t.Errorf("expected a *TypeError, got %T", err)
	}
}

func TestStringTensorToOrtValue(t *testing.T) {
	defer resetEnvironmentState()

	var filled []string
	released := uintptr(0)
	mu.Lock()
	getAllocatorWithDefaultOptionsFunc = func(out *uintptr) uintptr {
		*out = 3
		return 0
	}
	createTensorAsOrtValueFunc = func(allocator uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, out *uintptr) uintptr {
		if elementType != TensorElementDataTypeString {
			return 1
		}
		*out = 21
		return 0
	}
	fillStringTensorFunc = func(handle uintptr, values *uintptr, count uintptr) uintptr {
		for _, ptr := range unsafe.Slice(values, count) {
			filled = append(filled, CstringToGo(ptr))
		}
		return 0
	}
	releaseValueFunc = func(handle uintptr) { released = handle }
	mu.Unlock()

	tensor, err := NewStringDenseTensor(Shape{2}, []string{"a", "bc"})
	if err != nil {
		t.Fatalf("failed to build tensor: %v", err)
	}

	handle, cleanup, err := tensorToOrtValue(tensor)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	cleanup()

	if handle != 21 {
		t.Errorf("expected handle 21, got %d", handle)
	}
	if len(filled) != 2 || filled[0] != "a" || filled[1] != "bc" {
		t.Errorf("expected strings copied into the tensor, got %v", filled)
	}
	if released != 0 {
		t.Errorf("expected the value to stay alive on success, released=%d", released)
	}
}

// installShapeInfoFakes wires the type-and-shape query chain for a tensor of
// the given element type and dims.
func installShapeInfoFakes(t *testing.T, elementType TensorElementDataType, dims []int64, count uintptr) {
	t.Helper()
	mu.Lock()
	getValueTypeFunc = func(handle uintptr, out *int32) uintptr {
		*out = int32(ONNXTypeTensor)
		return 0
	}
	getTensorTypeAndShapeFunc = func(handle uintptr, out *uintptr) uintptr {
		*out = 5
		return 0
	}
	getTensorElementTypeFunc = func(info uintptr, out *int32) uintptr {
		*out = int32(elementType)
		return 0
	}
	getDimensionsCountFunc = func(info uintptr, out *uintptr) uintptr {
		*out = uintptr(len(dims))
		return 0
	}
	getDimensionsFunc = func(info uintptr, out *int64, rank uintptr) uintptr {
		copy(unsafe.Slice(out, rank), dims)
		return 0
	}
	getTensorShapeElementCountFunc = func(info uintptr, out *uintptr) uintptr {
		*out = count
		return 0
	}
	releaseTensorTypeAndShapeInfoFunc = func(info uintptr) {}
	mu.Unlock()
}

func TestOrtValueToTensorCPU(t *testing.T) {
	defer resetEnvironmentState()
	installShapeInfoFakes(t, TensorElementDataTypeFloat, []int64{2, 2}, 4)

	backing := float32Bytes([]float32{1, 2, 3, 4})
	released := uintptr(0)
	mu.Lock()
	getTensorMutableDataFunc = func(handle uintptr, out *uintptr) uintptr {
		*out = uintptr(unsafe.Pointer(unsafe.SliceData(backing)))
		return 0
	}
	releaseValueFunc = func(handle uintptr) { released = handle }
	mu.Unlock()

	tensor, err := ortValueToTensor(33, DataLocationCPU)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if tensor.Location() != DataLocationCPU {
		t.Errorf("expected cpu location, got %s", tensor.Location())
	}
	if tensor.ElementType() != TensorElementDataTypeFloat {
		t.Errorf("expected float element type, got %s", tensor.ElementType())
	}
	dims := tensor.Dims()
	if len(dims) != 2 || dims[0] != 2 || dims[1] != 2 {
		t.Errorf("expected dims [2 2], got %v", dims)
	}
	raw := tensor.Raw()
	if len(raw) != 16 {
		t.Fatalf("expected 16 bytes of data, got %d", len(raw))
	}
	if &raw[0] != &backing[0] {
		t.Error("expected the tensor to alias the native buffer")
	}

	dense, ok := tensor.(*DenseTensor)
	if !ok {
		t.Fatalf("expected a *DenseTensor from the default constructor, got %T", tensor)
	}
	if err := dense.Destroy(); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if released != 33 {
		t.Errorf("expected the adopted value handle 33 to be released, got %d", released)
	}
}

func TestOrtValueToTensorGPUBuffer(t *testing.T) {
	defer resetEnvironmentState()
	installShapeInfoFakes(t, TensorElementDataTypeFloat, []int64{4}, 4)

	mu.Lock()
	getTensorMutableDataFunc = func(handle uintptr, out *uintptr) uintptr {
		*out = 0xcafe0
		return 0
	}
	releaseValueFunc = func(handle uintptr) {}
	mu.Unlock()

	tensor, err := ortValueToTensor(44, DataLocationGPUBuffer)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if tensor.Location() != DataLocationGPUBuffer {
		t.Errorf("expected gpu-buffer location, got %s", tensor.Location())
	}
	if tensor.GPUBuffer() != 0xcafe0 {
		t.Errorf("expected the device pointer to be exposed, got %#x", tensor.GPUBuffer())
	}
	if tensor.Raw() != nil {
		t.Error("expected no host data for a GPU-resident output")
	}
}

func TestOrtValueToTensorString(t *testing.T) {
	defer resetEnvironmentState()
	installShapeInfoFakes(t, TensorElementDataTypeString, []int64{2}, 2)

	content := []byte("abc")
	released := uintptr(0)
	mu.Lock()
	getTensorMutableDataFunc = func(handle uintptr, out *uintptr) uintptr { return 1 }
	getStringTensorDataLengthFunc = func(handle uintptr, out *uintptr) uintptr {
		*out = uintptr(len(content))
		return 0
	}
	getStringTensorContentFunc = func(handle uintptr, buf uintptr, bufLen uintptr, offsets *uintptr, count uintptr) uintptr {
		// #nosec G103 -- buf points at a live Go slice provided by the caller.
		copy(unsafe.Slice((*byte)(unsafe.Pointer(buf)), bufLen), content)
		offsetSlice := unsafe.Slice(offsets, count)
		offsetSlice[0] = 0
		offsetSlice[1] = 1
		return 0
	}
	releaseValueFunc = func(handle uintptr) { released = handle }
	mu.Unlock()

	tensor, err := ortValueToTensor(55, DataLocationCPU)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	values := tensor.Strings()
	if len(values) != 2 || values[0] != "a" || values[1] != "bc" {
		t.Errorf("expected strings [a bc], got %v", values)
	}
	if released != 55 {
		t.Errorf("expected the string value to be released eagerly, got %d", released)
	}
}

func TestOrtValueToTensorRejectsNonTensor(t *testing.T) {
	defer resetEnvironmentState()

	mu.Lock()
	getValueTypeFunc = func(handle uintptr, out *int32) uintptr {
		*out = int32(ONNXTypeSequence)
		return 0
	}
	getTensorTypeAndShapeFunc = func(handle uintptr, out *uintptr) uintptr { return 1 }
	getTensorMutableDataFunc = func(handle uintptr, out *uintptr) uintptr { return 1 }
	mu.Unlock()

	_, err := ortValueToTensor(66, DataLocationCPU)
	if err == nil || !strings.Contains(err.Error(), "only tensor outputs are supported") {
		t.Fatalf("expected non-tensor rejection, got: %v", err)
	}
}

// rawLengthTensor lets tests present a CPU byte view that disagrees with the
// declared shape.
type rawLengthTensor struct {
	dims Shape
	raw  []byte
}

func (t *rawLengthTensor) Location() DataLocation             { return DataLocationCPU }
func (t *rawLengthTensor) ElementType() TensorElementDataType { return TensorElementDataTypeFloat }
func (t *rawLengthTensor) Dims() Shape                        { return t.dims }
func (t *rawLengthTensor) Raw() []byte                        { return t.raw }
func (t *rawLengthTensor) Strings() []string                  { return nil }
func (t *rawLengthTensor) GPUBuffer() uintptr                 { return 0 }
func (t *rawLengthTensor) ByteLength() uintptr                { return uintptr(len(t.raw)) }

func TestGPUBufferOutputRoundTripsAsInput(t *testing.T) {
	defer resetEnvironmentState()
	installShapeInfoFakes(t, TensorElementDataTypeFloat, []int64{1, 4}, 4)

	mu.Lock()
	getTensorMutableDataFunc = func(handle uintptr, out *uintptr) uintptr {
		*out = 0xfeed0
		return 0
	}
	releaseValueFunc = func(handle uintptr) {}
	mu.Unlock()

	output, err := ortValueToTensor(77, DataLocationGPUBuffer)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if output.ByteLength() != 16 {
		t.Fatalf("expected a shape-derived byte length of 16 for a device output, got %d", output.ByteLength())
	}

	names := installMemoryInfoFakes(t)
	var gotData, gotLen uintptr
	mu.Lock()
	createTensorWithDataAsOrtValueFunc = func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, out *uintptr) uintptr {
		gotData = data
		gotLen = dataLen
		*out = 78
		return 0
	}
	mu.Unlock()

	handle, cleanup, err := tensorToOrtValue(output)
	if err != nil {
		t.Fatalf("expected the device output to marshal back as an input, got: %v", err)
	}
	defer cleanup()

	if handle != 78 {
		t.Errorf("expected handle 78, got %d", handle)
	}
	if gotData != 0xfeed0 {
		t.Errorf("expected the device pointer to pass through, got %#x", gotData)
	}
	if gotLen != 16 {
		t.Errorf("expected a 16-byte length derived from the shape, got %d", gotLen)
	}
	if len(*names) == 0 || (*names)[len(*names)-1] != gpuBufferAllocatorName {
		t.Errorf("expected the %s memory info to be used, got %v", gpuBufferAllocatorName, *names)
	}
}
