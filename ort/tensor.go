package ort

import (
	"fmt"
	"runtime"
	"unsafe"
)

// HostTensor is the host-side view of a tensor handed to or returned from an
// inference session. Implementations describe where the data lives (CPU bytes,
// string slices, or a device buffer) without committing to a native OrtValue.
type HostTensor interface {
	Location() DataLocation
	ElementType() TensorElementDataType
	Dims() Shape
	// Raw returns the CPU byte view of the data, nil for string and
	// GPU-resident tensors.
	Raw() []byte
	// Strings returns the element values of a string tensor, nil otherwise.
	Strings() []string
	// GPUBuffer returns the device buffer pointer for GPU-resident tensors,
	// 0 otherwise.
	GPUBuffer() uintptr
	// ByteLength returns the total data size in bytes. For CPU tensors this
	// equals len(Raw()).
	ByteLength() uintptr
}

// TensorBacking carries the native resources backing an engine-produced
// tensor. When Value is non-zero the constructed tensor owns that OrtValue
// and must release it when destroyed; Data (if set) aliases memory owned by
// that value.
type TensorBacking struct {
	Value  uintptr
	Data   []byte
	Buffer uintptr
}

// TensorConstructor builds a host tensor from engine output. A host embedding
// registers its own constructor via InitOrtOnce to materialize outputs as its
// native tensor type; the package default produces a *DenseTensor.
type TensorConstructor func(elementType TensorElementDataType, dims Shape, location DataLocation, backing TensorBacking, strs []string) (HostTensor, error)

// DenseTensor is the package's own HostTensor implementation: an element type,
// a shape and a flat byte buffer (or string slice, or GPU buffer pointer).
type DenseTensor struct {
	location    DataLocation
	elementType TensorElementDataType
	dims        Shape
	data        []byte
	strs        []string
	gpuBuffer   uintptr
	byteLength  uintptr
	owned       uintptr // OrtValue released on Destroy, 0 when data is host-owned
}

// NewDenseTensor creates a CPU tensor over the given byte buffer. The buffer
// length must match the element count implied by dims.
func NewDenseTensor(elementType TensorElementDataType, dims Shape, data []byte) (*DenseTensor, error) {
	elementSize := elementType.ElementSize()
	if elementSize == 0 {
		return nil, typeErrorf("unsupported tensor element type %s", elementType)
	}

	dimsCopy := cloneShape(dims)
	count, err := shapeElementCount(dimsCopy)
	if err != nil {
		return nil, typeErrorf("%s", err.Error())
	}
	expected, err := tensorDataByteSize(count, elementSize)
	if err != nil {
		return nil, err
	}
	if uintptr(len(data)) != expected {
		return nil, typeErrorf("tensor data byte length mismatch: got %d bytes, expected %d for shape %v and type %s",
			len(data), expected, dimsCopy, elementType)
	}

	return &DenseTensor{
		location:    DataLocationCPU,
		elementType: elementType,
		dims:        dimsCopy,
		data:        data,
		byteLength:  expected,
	}, nil
}

// NewStringDenseTensor creates a CPU string tensor. The number of elements
// must match the element count implied by dims.
func NewStringDenseTensor(dims Shape, values []string) (*DenseTensor, error) {
	dimsCopy := cloneShape(dims)
	count, err := shapeElementCount(dimsCopy)
	if err != nil {
		return nil, typeErrorf("%s", err.Error())
	}
	if len(values) != count {
		return nil, typeErrorf("string tensor element count mismatch: got %d values, expected %d for shape %v",
			len(values), count, dimsCopy)
	}

	return &DenseTensor{
		location:    DataLocationCPU,
		elementType: TensorElementDataTypeString,
		dims:        dimsCopy,
		strs:        values,
	}, nil
}

// NewGPUDenseTensor creates a tensor whose data lives in a device buffer. The
// buffer pointer must stay valid for as long as the tensor is used.
func NewGPUDenseTensor(elementType TensorElementDataType, dims Shape, buffer uintptr, byteLength uintptr) (*DenseTensor, error) {
	if elementType == TensorElementDataTypeString {
		return nil, typeErrorf("string tensors cannot be GPU-resident")
	}
	if buffer == 0 {
		return nil, typeErrorf("GPU tensor buffer pointer is null")
	}

	return &DenseTensor{
		location:    DataLocationGPUBuffer,
		elementType: elementType,
		dims:        cloneShape(dims),
		gpuBuffer:   buffer,
		byteLength:  byteLength,
	}, nil
}

// defaultTensorConstructor builds a *DenseTensor that adopts ownership of the
// backing OrtValue, if any.
func defaultTensorConstructor(elementType TensorElementDataType, dims Shape, location DataLocation, backing TensorBacking, strs []string) (HostTensor, error) {
	byteLength := uintptr(len(backing.Data))
	if backing.Data == nil {
		// Device-resident backings carry no host bytes; the length follows
		// from the shape so the tensor can be marshalled back as an input.
		if size := elementType.ElementSize(); size != 0 {
			if count, err := shapeElementCount(dims); err == nil {
				if n, err := tensorDataByteSize(count, size); err == nil {
					byteLength = n
				}
			}
		}
	}

	t := &DenseTensor{
		location:    location,
		elementType: elementType,
		dims:        cloneShape(dims),
		data:        backing.Data,
		strs:        strs,
		gpuBuffer:   backing.Buffer,
		byteLength:  byteLength,
		owned:       backing.Value,
	}
	if t.owned != 0 {
		runtime.SetFinalizer(t, func(dt *DenseTensor) {
			_ = dt.Destroy()
		})
	}
	return t, nil
}

func (t *DenseTensor) Location() DataLocation             { return t.location }
func (t *DenseTensor) ElementType() TensorElementDataType { return t.elementType }
func (t *DenseTensor) Dims() Shape                        { return t.dims }
func (t *DenseTensor) Raw() []byte                        { return t.data }
func (t *DenseTensor) Strings() []string                  { return t.strs }
func (t *DenseTensor) GPUBuffer() uintptr                 { return t.gpuBuffer }

func (t *DenseTensor) ByteLength() uintptr {
	if t.data != nil {
		return uintptr(len(t.data))
	}
	return t.byteLength
}

// Type returns the value type (always ValueTypeTensor for tensors)
func (t *DenseTensor) Type() ValueType {
	return ValueTypeTensor
}

// Destroy releases the backing OrtValue when the tensor owns one. The data
// slice must not be used afterwards.
func (t *DenseTensor) Destroy() error {
	if t == nil {
		return nil
	}

	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	mu.Lock()
	handle := t.owned
	releaseValue := releaseValueFunc
	t.owned = 0
	t.data = nil
	t.gpuBuffer = 0
	runtime.SetFinalizer(t, nil)
	mu.Unlock()

	if handle != 0 && releaseValue != nil {
		releaseValue(handle)
	}
	return nil
}

// Tensor represents a tensor with data of type T
type Tensor[T any] struct {
	shape  Shape
	data   []T
	handle uintptr         // Pointer to OrtValue
	pinner *runtime.Pinner // Pins data backing array while OrtValue may access it.
}

func (t *Tensor[T]) ortValueHandle() uintptr {
	if t == nil {
		return 0
	}
	return t.handle
}

// NewTensor creates a new tensor with the given shape and data
func NewTensor[T any](shape Shape, data []T) (*Tensor[T], error) {
	elementType, elementSize, err := tensorElementType[T]()
	if err != nil {
		return nil, err
	}

	shapeCopy := cloneShape(shape)
	elementCount, err := shapeElementCount(shapeCopy)
	if err != nil {
		return nil, err
	}
	if len(data) != elementCount {
		return nil, fmt.Errorf("data length mismatch: got %d elements, expected %d for shape %v", len(data), elementCount, shapeCopy)
	}

	return newTensorFromData(shapeCopy, data, elementType, elementSize)
}

// NewEmptyTensor creates a new empty tensor with the given shape
func NewEmptyTensor[T any](shape Shape) (*Tensor[T], error) {
	elementType, elementSize, err := tensorElementType[T]()
	if err != nil {
		return nil, err
	}

	shapeCopy := cloneShape(shape)
	elementCount, err := shapeElementCount(shapeCopy)
	if err != nil {
		return nil, err
	}

	data := make([]T, elementCount)

	return newTensorFromData(shapeCopy, data, elementType, elementSize)
}

func newTensorFromData[T any](shape Shape, data []T, elementType TensorElementDataType, elementSize uintptr) (*Tensor[T], error) {
	dataBytes, err := tensorDataByteSize(len(data), elementSize)
	if err != nil {
		return nil, err
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	if ortAPI == nil || createMemoryInfoFunc == nil || releaseMemoryInfoFunc == nil || createTensorWithDataAsOrtValueFunc == nil {
		mu.Unlock()
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}
	createMemoryInfo := createMemoryInfoFunc
	releaseMemoryInfo := releaseMemoryInfoFunc
	createTensorWithData := createTensorWithDataAsOrtValueFunc
	mu.Unlock()

	nameBytes, namePtr := GoToCstring("Cpu")
	var memInfo uintptr
	status := createMemoryInfo(namePtr, AllocatorTypeArena, 0, MemTypeCPU, &memInfo)
	runtime.KeepAlive(nameBytes)
	if status != 0 {
		errMsg := getErrorMessage(status)
		releaseStatus(status)
		return nil, fmt.Errorf("failed to create CPU memory info: %s", errMsg)
	}
	defer releaseMemoryInfo(memInfo)

	var dataPtr uintptr
	var pinner *runtime.Pinner
	if len(data) > 0 {
		pinner = &runtime.Pinner{}
		pinner.Pin(unsafe.SliceData(data))
		// #nosec G103 -- Required for CGO-free FFI; backing array is pinned for OrtValue lifetime via runtime.Pinner.
		dataPtr = uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	}

	var valueHandle uintptr
	status = createTensorWithData(memInfo, dataPtr, dataBytes, shapePtr(shape), uintptr(len(shape)), elementType, &valueHandle)
	// ORT reads shape dimensions synchronously during CreateTensorWithDataAsOrtValue call.
	// Keep shape alive for the call; tensor data lifetime is guarded by pinner.
	runtime.KeepAlive(shape)
	if status != 0 {
		if pinner != nil {
			pinner.Unpin()
		}
		errMsg := getErrorMessage(status)
		releaseStatus(status)
		return nil, fmt.Errorf("failed to create tensor: %s", errMsg)
	}

	tensor := &Tensor[T]{
		shape:  shape,
		data:   data,
		handle: valueHandle,
		pinner: pinner,
	}

	// Finalizer is a safety net to avoid leaking OrtValue if callers forget Destroy().
	runtime.SetFinalizer(tensor, func(t *Tensor[T]) {
		_ = t.Destroy()
	})

	return tensor, nil
}

// GetData returns the tensor data.
// After Destroy() it returns nil. Calling on a nil receiver also returns nil.
func (t *Tensor[T]) GetData() []T {
	if t == nil {
		return nil
	}
	return t.data
}

// Shape returns the tensor shape
func (t *Tensor[T]) Shape() Shape {
	if t == nil {
		return nil
	}
	return t.shape
}

// Destroy releases the tensor resources
func (t *Tensor[T]) Destroy() error {
	if t == nil {
		return nil
	}

	// Lock order here is ortCallMu -> mu.
	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	var handle uintptr
	var releaseValue func(uintptr)
	var pinner *runtime.Pinner

	mu.Lock()
	handle = t.handle
	releaseValue = releaseValueFunc
	pinner = t.pinner
	t.handle = 0
	t.data = nil
	t.shape = nil
	t.pinner = nil
	runtime.SetFinalizer(t, nil)
	mu.Unlock()

	if handle != 0 && releaseValue != nil {
		releaseValue(handle)
	}
	if pinner != nil {
		pinner.Unpin()
	}

	return nil
}

// Type returns the value type (always ValueTypeTensor for tensors)
func (t *Tensor[T]) Type() ValueType {
	return ValueTypeTensor
}

// HostTensor implementation for Tensor[T]. A typed tensor always lives on the
// CPU; its raw view aliases the pinned data slice.

func (t *Tensor[T]) Location() DataLocation { return DataLocationCPU }

func (t *Tensor[T]) ElementType() TensorElementDataType {
	elementType, _, err := tensorElementType[T]()
	if err != nil {
		return TensorElementDataTypeUndefined
	}
	return elementType
}

func (t *Tensor[T]) Dims() Shape { return t.Shape() }

func (t *Tensor[T]) Raw() []byte {
	if t == nil || len(t.data) == 0 {
		return nil
	}
	var zero T
	// #nosec G103 -- reinterprets the pinned backing array as bytes.
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(t.data))), len(t.data)*int(unsafe.Sizeof(zero)))
}

func (t *Tensor[T]) Strings() []string { return nil }

func (t *Tensor[T]) GPUBuffer() uintptr { return 0 }

func (t *Tensor[T]) ByteLength() uintptr {
	return uintptr(len(t.Raw()))
}

// TensorData returns a typed view of a CPU tensor's raw bytes. The returned
// slice aliases the tensor's buffer and is only valid until the tensor is
// destroyed.
func TensorData[T any](t HostTensor) ([]T, error) {
	if t == nil {
		return nil, fmt.Errorf("tensor is nil")
	}
	elementType, elementSize, err := tensorElementType[T]()
	if err != nil {
		return nil, err
	}
	if t.Location() != DataLocationCPU {
		return nil, fmt.Errorf("tensor data lives on %q, not the CPU", t.Location())
	}
	if got := t.ElementType(); got != elementType {
		return nil, fmt.Errorf("tensor element type mismatch: got %d, want %d", got, elementType)
	}
	raw := t.Raw()
	if len(raw) == 0 {
		return nil, nil
	}
	if uintptr(len(raw))%elementSize != 0 {
		return nil, fmt.Errorf("tensor byte length %d is not a multiple of the element size %d", len(raw), elementSize)
	}
	// #nosec G103 -- reinterprets the tensor's byte buffer as its element type.
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(raw))), uintptr(len(raw))/elementSize), nil
}

func cloneShape(shape Shape) Shape {
	if len(shape) == 0 {
		// Keep scalar tensors as non-nil empty shape (rank 0), not nil.
		return Shape{}
	}

	shapeCopy := make(Shape, len(shape))
	copy(shapeCopy, shape)
	return shapeCopy
}

func shapeElementCount(shape Shape) (int, error) {
	maxInt := int(^uint(0) >> 1)

	count := 1
	for i, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("invalid shape dimension at index %d: %d (must be >= 0)", i, dim)
		}

		if dim == 0 {
			count = 0
			continue
		}

		if count == 0 {
			continue
		}

		if dim > int64(maxInt) {
			return 0, fmt.Errorf("shape dimension at index %d is too large: %d", i, dim)
		}

		dimInt := int(dim)
		if count > maxInt/dimInt {
			return 0, fmt.Errorf("shape %v exceeds maximum supported element count", shape)
		}

		count *= dimInt
	}

	return count, nil
}

// ShapeElementCount returns the total element count for a shape.
// Dimensions must be non-negative; zero dimensions produce a count of zero.
func ShapeElementCount(shape Shape) (int, error) {
	return shapeElementCount(shape)
}

func shapePtr(shape Shape) *int64 {
	if len(shape) == 0 {
		return nil
	}
	return unsafe.SliceData(shape)
}

func tensorDataByteSize(elementCount int, elementSize uintptr) (uintptr, error) {
	if elementCount < 0 {
		return 0, fmt.Errorf("element count cannot be negative: %d", elementCount)
	}
	if elementCount == 0 {
		return 0, nil
	}
	if elementSize == 0 {
		return 0, fmt.Errorf("element size cannot be zero")
	}

	count := uintptr(elementCount)
	if count > ^uintptr(0)/elementSize {
		return 0, fmt.Errorf("tensor data size overflow: %d elements with element size %d", elementCount, elementSize)
	}

	return count * elementSize, nil
}

// tensorElementType maps Go generic element type T to ONNX tensor element metadata.
func tensorElementType[T any]() (TensorElementDataType, uintptr, error) {
	var zero T

	switch any(zero).(type) {
	case float32:
		return TensorElementDataTypeFloat, unsafe.Sizeof(zero), nil
	case float64:
		return TensorElementDataTypeDouble, unsafe.Sizeof(zero), nil
	case int8:
		return TensorElementDataTypeInt8, unsafe.Sizeof(zero), nil
	case uint8:
		return TensorElementDataTypeUint8, unsafe.Sizeof(zero), nil
	case int16:
		return TensorElementDataTypeInt16, unsafe.Sizeof(zero), nil
	case uint16:
		return TensorElementDataTypeUint16, unsafe.Sizeof(zero), nil
	case int32:
		return TensorElementDataTypeInt32, unsafe.Sizeof(zero), nil
	case uint32:
		return TensorElementDataTypeUint32, unsafe.Sizeof(zero), nil
	case int64:
		return TensorElementDataTypeInt64, unsafe.Sizeof(zero), nil
	case uint64:
		return TensorElementDataTypeUint64, unsafe.Sizeof(zero), nil
	case bool:
		return TensorElementDataTypeBool, unsafe.Sizeof(zero), nil
	default:
		return TensorElementDataTypeUndefined, 0, fmt.Errorf("unsupported tensor element type %T", zero)
	}
}
