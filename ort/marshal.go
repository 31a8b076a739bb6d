package ort

import (
	"fmt"
	"runtime"
	"unsafe"
)

// tensorToOrtValue marshals a host tensor into a native OrtValue. Numeric CPU
// tensors are wrapped zero-copy: the backing buffer is pinned and the returned
// cleanup must not run before the engine has finished reading it. String
// tensors are copied into engine-allocated storage. GPU-resident tensors wrap
// the device buffer pointer directly.
//
// The returned OrtValue handle is owned by the caller and must be released
// with releaseOrtValue. cleanup is always non-nil on success.
func tensorToOrtValue(t HostTensor) (uintptr, func(), error) {
	if t == nil {
		return 0, nil, typeErrorf("tensor is nil")
	}

	if t.ElementType() == TensorElementDataTypeString {
		return stringTensorToOrtValue(t)
	}

	elementSize := t.ElementType().ElementSize()
	if elementSize == 0 {
		return 0, nil, typeErrorf("unsupported tensor element type %s", t.ElementType())
	}

	dims := t.Dims()
	count, err := shapeElementCount(dims)
	if err != nil {
		return 0, nil, typeErrorf("%s", err.Error())
	}
	expected, err := tensorDataByteSize(count, elementSize)
	if err != nil {
		return 0, nil, err
	}

	mu.Lock()
	createTensorWithData := createTensorWithDataAsOrtValueFunc
	mu.Unlock()
	if createTensorWithData == nil {
		return 0, nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var memInfo uintptr
	var releaseMemInfo func()
	var dataPtr uintptr
	var pinner *runtime.Pinner

	switch t.Location() {
	case DataLocationGPUBuffer:
		if t.GPUBuffer() == 0 {
			return 0, nil, typeErrorf("GPU tensor has no device buffer")
		}
		// The buffer is opaque to the host. Its byte length follows from the
		// shape; no content validation happens here.
		memInfo, releaseMemInfo, err = gpuBufferMemoryInfoHandle()
		if err != nil {
			return 0, nil, err
		}
		dataPtr = t.GPUBuffer()

	default:
		raw := t.Raw()
		if uintptr(len(raw)) != expected {
			return 0, nil, typeErrorf("tensor data byte length mismatch: got %d bytes, expected %d for shape %v and type %s",
				len(raw), expected, dims, t.ElementType())
		}
		memInfo, releaseMemInfo, err = cpuMemoryInfoHandle()
		if err != nil {
			return 0, nil, err
		}
		if len(raw) > 0 {
			pinner = &runtime.Pinner{}
			pinner.Pin(unsafe.SliceData(raw))
			// #nosec G103 -- backing array is pinned for the lifetime of the OrtValue.
			dataPtr = uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
		}
	}
	defer releaseMemInfo()

	var handle uintptr
	status := createTensorWithData(memInfo, dataPtr, expected, shapePtr(dims), uintptr(len(dims)), t.ElementType(), &handle)
	runtime.KeepAlive(dims)
	if status != 0 {
		if pinner != nil {
			pinner.Unpin()
		}
		return 0, nil, statusError("failed to create tensor", status)
	}

	cleanup := func() {
		if pinner != nil {
			pinner.Unpin()
		}
	}
	return handle, cleanup, nil
}

// stringTensorToOrtValue copies a host string tensor into engine-allocated
// storage via FillStringTensor.
func stringTensorToOrtValue(t HostTensor) (uintptr, func(), error) {
	mu.Lock()
	getAllocator := getAllocatorWithDefaultOptionsFunc
	createTensor := createTensorAsOrtValueFunc
	fillStringTensor := fillStringTensorFunc
	releaseValue := releaseValueFunc
	mu.Unlock()
	if getAllocator == nil || createTensor == nil || fillStringTensor == nil {
		return 0, nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	dims := t.Dims()
	count, err := shapeElementCount(dims)
	if err != nil {
		return 0, nil, typeErrorf("%s", err.Error())
	}
	values := t.Strings()
	if len(values) != count {
		return 0, nil, typeErrorf("string tensor element count mismatch: got %d values, expected %d for shape %v",
			len(values), count, dims)
	}

	var allocator uintptr
	if status := getAllocator(&allocator); status != 0 {
		return 0, nil, statusError("failed to get default allocator", status)
	}

	var handle uintptr
	status := createTensor(allocator, shapePtr(dims), uintptr(len(dims)), TensorElementDataTypeString, &handle)
	runtime.KeepAlive(dims)
	if status != 0 {
		return 0, nil, statusError("failed to create string tensor", status)
	}

	if len(values) > 0 {
		backing, ptrs := makeCStringPointerArray(values)
		status = fillStringTensor(handle, unsafe.SliceData(ptrs), uintptr(len(ptrs)))
		runtime.KeepAlive(backing)
		runtime.KeepAlive(ptrs)
		if status != 0 {
			if releaseValue != nil {
				releaseValue(handle)
			}
			return 0, nil, statusError("failed to fill string tensor", status)
		}
	}

	return handle, func() {}, nil
}

// ortValueToTensor converts a native OrtValue into a host tensor using the
// registered tensor constructor. For CPU outputs the constructed tensor
// adopts ownership of the OrtValue and aliases its data buffer; string
// outputs are copied and the value is released immediately. location tells
// where the caller expects the data to live and is passed through to the
// constructor.
func ortValueToTensor(handle uintptr, location DataLocation) (HostTensor, error) {
	mu.Lock()
	getValueType := getValueTypeFunc
	getTypeAndShape := getTensorTypeAndShapeFunc
	getElementType := getTensorElementTypeFunc
	getDimsCount := getDimensionsCountFunc
	getDims := getDimensionsFunc
	getElementCount := getTensorShapeElementCountFunc
	releaseShapeInfo := releaseTensorTypeAndShapeInfoFunc
	getMutableData := getTensorMutableDataFunc
	releaseValue := releaseValueFunc
	mu.Unlock()
	if getValueType == nil || getTypeAndShape == nil || getMutableData == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var onnxType int32
	if status := getValueType(handle, &onnxType); status != 0 {
		return nil, statusError("failed to get output value type", status)
	}
	if ONNXType(onnxType) != ONNXTypeTensor {
		return nil, fmt.Errorf("unsupported output type: only tensor outputs are supported")
	}

	var shapeInfo uintptr
	if status := getTypeAndShape(handle, &shapeInfo); status != 0 {
		return nil, statusError("failed to get output shape info", status)
	}
	defer func() {
		if releaseShapeInfo != nil {
			releaseShapeInfo(shapeInfo)
		}
	}()

	var rawElementType int32
	if status := getElementType(shapeInfo, &rawElementType); status != 0 {
		return nil, statusError("failed to get output element type", status)
	}
	elementType := TensorElementDataType(rawElementType)

	var rank uintptr
	if status := getDimsCount(shapeInfo, &rank); status != 0 {
		return nil, statusError("failed to get output rank", status)
	}
	dims := make(Shape, rank)
	if rank > 0 {
		if status := getDims(shapeInfo, unsafe.SliceData(dims), rank); status != 0 {
			return nil, statusError("failed to get output dimensions", status)
		}
	}

	var count uintptr
	if status := getElementCount(shapeInfo, &count); status != 0 {
		return nil, statusError("failed to get output element count", status)
	}

	ctor := instanceTensorCtor()

	if elementType == TensorElementDataTypeString {
		values, err := readStringTensor(handle, count)
		if err != nil {
			return nil, err
		}
		if releaseValue != nil {
			releaseValue(handle)
		}
		return ctor(elementType, dims, DataLocationCPU, TensorBacking{}, values)
	}

	var dataPtr uintptr
	if status := getMutableData(handle, &dataPtr); status != 0 {
		return nil, statusError("failed to get output data", status)
	}

	if location == DataLocationGPUBuffer {
		return ctor(elementType, dims, location, TensorBacking{Value: handle, Buffer: dataPtr}, nil)
	}

	byteLen, err := tensorDataByteSize(int(count), elementType.ElementSize())
	if err != nil {
		return nil, err
	}
	var data []byte
	if byteLen > 0 && dataPtr != 0 {
		// #nosec G103 -- aliases memory owned by the OrtValue adopted below.
		data = unsafe.Slice((*byte)(unsafe.Pointer(dataPtr)), byteLen)
	}
	return ctor(elementType, dims, DataLocationCPU, TensorBacking{Value: handle, Data: data}, nil)
}

// readStringTensor copies all elements of a native string tensor into Go
// strings.
func readStringTensor(handle uintptr, count uintptr) ([]string, error) {
	mu.Lock()
	getDataLength := getStringTensorDataLengthFunc
	getContent := getStringTensorContentFunc
	mu.Unlock()
	if getDataLength == nil || getContent == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	if count == 0 {
		return []string{}, nil
	}

	var dataLen uintptr
	if status := getDataLength(handle, &dataLen); status != 0 {
		return nil, statusError("failed to get string tensor data length", status)
	}

	buf := make([]byte, dataLen)
	offsets := make([]uintptr, count)
	var bufPtr uintptr
	if dataLen > 0 {
		// #nosec G103 -- buf stays alive across the call via KeepAlive below.
		bufPtr = uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	}
	status := getContent(handle, bufPtr, dataLen, unsafe.SliceData(offsets), count)
	runtime.KeepAlive(buf)
	if status != 0 {
		return nil, statusError("failed to read string tensor content", status)
	}

	values := make([]string, count)
	for i := range values {
		start := offsets[i]
		end := dataLen
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		if start > end || end > dataLen {
			return nil, fmt.Errorf("string tensor offsets are inconsistent")
		}
		values[i] = string(buf[start:end])
	}
	return values, nil
}

// releaseOrtValue releases a native value handle, tolerating nil function
// state during teardown.
func releaseOrtValue(handle uintptr) {
	if handle == 0 {
		return
	}
	mu.Lock()
	releaseValue := releaseValueFunc
	mu.Unlock()
	if releaseValue != nil {
		releaseValue(handle)
	}
}
