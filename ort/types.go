package ort

// OrtApiBase represents the base API structure returned by OrtGetApiBase.
type OrtApiBase struct {
	GetApi           uintptr
	GetVersionString uintptr
}

// OrtApi mirrors the ONNX Runtime C API function pointer table.
//
// Field order must match onnxruntime_c_api.h exactly: function pointers are
// resolved by struct offset. The table below covers API versions 1 through 12;
// regenerate with tools/gen_ortapi.go when a later entry is needed.
type OrtApi struct {
	CreateStatus    uintptr
	GetErrorCode    uintptr
	GetErrorMessage uintptr

	CreateEnv                 uintptr
	CreateEnvWithCustomLogger uintptr
	EnableTelemetryEvents     uintptr
	DisableTelemetryEvents    uintptr

	CreateSession          uintptr
	CreateSessionFromArray uintptr
	Run                    uintptr

	CreateSessionOptions             uintptr
	SetOptimizedModelFilePath        uintptr
	CloneSessionOptions              uintptr
	SetSessionExecutionMode          uintptr
	EnableProfiling                  uintptr
	DisableProfiling                 uintptr
	EnableMemPattern                 uintptr
	DisableMemPattern                uintptr
	EnableCpuMemArena                uintptr
	DisableCpuMemArena               uintptr
	SetSessionLogId                  uintptr
	SetSessionLogVerbosityLevel      uintptr
	SetSessionLogSeverityLevel       uintptr
	SetSessionGraphOptimizationLevel uintptr
	SetIntraOpNumThreads             uintptr
	SetInterOpNumThreads             uintptr

	CreateCustomOpDomain     uintptr
	CustomOpDomain_Add       uintptr
	AddCustomOpDomain        uintptr
	RegisterCustomOpsLibrary uintptr

	SessionGetInputCount                     uintptr
	SessionGetOutputCount                    uintptr
	SessionGetOverridableInitializerCount    uintptr
	SessionGetInputTypeInfo                  uintptr
	SessionGetOutputTypeInfo                 uintptr
	SessionGetOverridableInitializerTypeInfo uintptr
	SessionGetInputName                      uintptr
	SessionGetOutputName                     uintptr
	SessionGetOverridableInitializerName     uintptr

	CreateRunOptions                  uintptr
	RunOptionsSetRunLogVerbosityLevel uintptr
	RunOptionsSetRunLogSeverityLevel  uintptr
	RunOptionsSetRunTag               uintptr
	RunOptionsGetRunLogVerbosityLevel uintptr
	RunOptionsGetRunLogSeverityLevel  uintptr
	RunOptionsGetRunTag               uintptr
	RunOptionsSetTerminate            uintptr
	RunOptionsUnsetTerminate          uintptr

	CreateTensorAsOrtValue         uintptr
	CreateTensorWithDataAsOrtValue uintptr
	IsTensor                       uintptr
	GetTensorMutableData           uintptr

	FillStringTensor          uintptr
	GetStringTensorDataLength uintptr
	GetStringTensorContent    uintptr

	CastTypeInfoToTensorInfo     uintptr
	GetOnnxTypeFromTypeInfo      uintptr
	CreateTensorTypeAndShapeInfo uintptr
	SetTensorElementType         uintptr

	SetDimensions              uintptr
	GetTensorElementType       uintptr
	GetDimensionsCount         uintptr
	GetDimensions              uintptr
	GetSymbolicDimensions      uintptr
	GetTensorShapeElementCount uintptr
	GetTensorTypeAndShape      uintptr
	GetTypeInfo                uintptr
	GetValueType               uintptr

	CreateMemoryInfo    uintptr
	CreateCpuMemoryInfo uintptr
	CompareMemoryInfo   uintptr
	MemoryInfoGetName   uintptr
	MemoryInfoGetId     uintptr
	MemoryInfoGetMemType uintptr
	MemoryInfoGetType   uintptr

	AllocatorAlloc                 uintptr
	AllocatorFree                  uintptr
	AllocatorGetInfo               uintptr
	GetAllocatorWithDefaultOptions uintptr

	AddFreeDimensionOverride uintptr

	GetValue         uintptr
	GetValueCount    uintptr
	CreateValue      uintptr
	CreateOpaqueValue uintptr
	GetOpaqueValue   uintptr

	KernelInfoGetAttribute_float  uintptr
	KernelInfoGetAttribute_int64  uintptr
	KernelInfoGetAttribute_string uintptr
	KernelContext_GetInputCount   uintptr
	KernelContext_GetOutputCount  uintptr
	KernelContext_GetInput        uintptr
	KernelContext_GetOutput       uintptr

	ReleaseEnv                    uintptr
	ReleaseStatus                 uintptr
	ReleaseMemoryInfo             uintptr
	ReleaseSession                uintptr
	ReleaseValue                  uintptr
	ReleaseRunOptions             uintptr
	ReleaseTypeInfo               uintptr
	ReleaseTensorTypeAndShapeInfo uintptr
	ReleaseSessionOptions         uintptr
	ReleaseCustomOpDomain         uintptr

	// API version 2

	GetDenotationFromTypeInfo      uintptr
	CastTypeInfoToMapTypeInfo      uintptr
	CastTypeInfoToSequenceTypeInfo uintptr
	GetMapKeyType                  uintptr
	GetMapValueType                uintptr
	GetSequenceElementType         uintptr
	ReleaseMapTypeInfo             uintptr
	ReleaseSequenceTypeInfo        uintptr
	SessionEndProfiling            uintptr
	SessionGetModelMetadata        uintptr

	ModelMetadataGetProducerName         uintptr
	ModelMetadataGetGraphName            uintptr
	ModelMetadataGetDomain               uintptr
	ModelMetadataGetDescription          uintptr
	ModelMetadataLookupCustomMetadataMap uintptr
	ModelMetadataGetVersion              uintptr
	ReleaseModelMetadata                 uintptr

	// API version 3

	CreateEnvWithGlobalThreadPools        uintptr
	DisablePerSessionThreads              uintptr
	CreateThreadingOptions                uintptr
	ReleaseThreadingOptions               uintptr
	ModelMetadataGetCustomMetadataMapKeys uintptr
	AddFreeDimensionOverrideByName        uintptr

	// API version 4

	GetAvailableProviders     uintptr
	ReleaseAvailableProviders uintptr

	// API version 5

	GetStringTensorElementLength uintptr
	GetStringTensorElement       uintptr
	FillStringTensorElement      uintptr
	AddSessionConfigEntry        uintptr

	CreateAllocator  uintptr
	ReleaseAllocator uintptr

	RunWithBinding       uintptr
	CreateIoBinding      uintptr
	ReleaseIoBinding     uintptr
	BindInput            uintptr
	BindOutput           uintptr
	BindOutputToDevice   uintptr
	GetBoundOutputNames  uintptr
	GetBoundOutputValues uintptr
	ClearBoundInputs     uintptr
	ClearBoundOutputs    uintptr

	TensorAt                   uintptr
	CreateAndRegisterAllocator uintptr
	SetLanguageProjection      uintptr

	SessionGetProfilingStartTimeNs uintptr

	SetGlobalIntraOpNumThreads uintptr
	SetGlobalInterOpNumThreads uintptr
	SetGlobalSpinControl       uintptr

	AddInitializer                               uintptr
	CreateEnvWithCustomLoggerAndGlobalThreadPools uintptr
	SessionOptionsAppendExecutionProvider_CUDA   uintptr
	SessionOptionsAppendExecutionProvider_ROCM   uintptr
	SessionOptionsAppendExecutionProvider_OpenVINO uintptr
	SetGlobalDenormalAsZero                      uintptr
	CreateArenaCfg                               uintptr
	ReleaseArenaCfg                              uintptr

	// API version 6

	ModelMetadataGetGraphDescription           uintptr
	SessionOptionsAppendExecutionProvider_TensorRT uintptr
	SetCurrentGpuDeviceId                      uintptr
	GetCurrentGpuDeviceId                      uintptr

	// API version 7

	KernelInfoGetAttributeArray_float uintptr
	KernelInfoGetAttributeArray_int64 uintptr
	CreateArenaCfgV2                  uintptr
	AddRunConfigEntry                 uintptr

	// API version 8

	CreatePrepackedWeightsContainer                     uintptr
	ReleasePrepackedWeightsContainer                    uintptr
	CreateSessionWithPrepackedWeightsContainer          uintptr
	CreateSessionFromArrayWithPrepackedWeightsContainer uintptr
	SessionOptionsAppendExecutionProvider_TensorRT_V2   uintptr
	CreateTensorRTProviderOptions                       uintptr
	UpdateTensorRTProviderOptions                       uintptr
	GetTensorRTProviderOptionsAsString                  uintptr
	ReleaseTensorRTProviderOptions                      uintptr
	EnableOrtCustomOps                                  uintptr
	RegisterAllocator                                   uintptr
	UnregisterAllocator                                 uintptr

	IsSparseTensor                         uintptr
	CreateSparseTensorAsOrtValue           uintptr
	FillSparseTensorCoo                    uintptr
	FillSparseTensorCsr                    uintptr
	FillSparseTensorBlockSparse            uintptr
	CreateSparseTensorWithValuesAsOrtValue uintptr
	UseCooIndices                          uintptr
	UseCsrIndices                          uintptr
	UseBlockSparseIndices                  uintptr
	GetSparseTensorFormat                  uintptr
	GetSparseTensorValuesTypeAndShape      uintptr
	GetSparseTensorValues                  uintptr
	GetSparseTensorIndicesTypeShape        uintptr
	GetSparseTensorIndices                 uintptr

	// API version 9

	HasValue                                uintptr
	KernelContext_GetGPUComputeStream       uintptr
	GetTensorMemoryInfo                     uintptr
	GetExecutionProviderApi                 uintptr
	SessionOptionsSetCustomCreateThreadFn   uintptr
	SessionOptionsSetCustomThreadCreationOptions uintptr
	SessionOptionsSetCustomJoinThreadFn     uintptr
	SetGlobalCustomCreateThreadFn           uintptr
	SetGlobalCustomThreadCreationOptions    uintptr
	SetGlobalCustomJoinThreadFn             uintptr
	SynchronizeBoundInputs                  uintptr
	SynchronizeBoundOutputs                 uintptr

	// API version 10

	SessionOptionsAppendExecutionProvider_CUDA_V2 uintptr
	CreateCUDAProviderOptions                     uintptr
	UpdateCUDAProviderOptions                     uintptr
	GetCUDAProviderOptionsAsString                uintptr
	ReleaseCUDAProviderOptions                    uintptr
	AppendExecutionProvider_MIGraphX              uintptr

	// API version 11

	AddExternalInitializers uintptr
	CreateOpAttr            uintptr
	ReleaseOpAttr           uintptr
	CreateOp                uintptr
	InvokeOp                uintptr
	ReleaseOp               uintptr

	// API version 12

	SessionOptionsAppendExecutionProvider uintptr

	// Later entries are not bound. Regenerate with tools/gen_ortapi.go
	// before reading any function pointer past this point.
}

// Status represents an ONNX Runtime status handle.
type Status struct {
	handle uintptr // Pointer to OrtStatus
}

// IsOK returns true if the status represents success
func (s *Status) IsOK() bool {
	return s.handle == 0
}

// GetErrorCode returns the engine error code carried by the status.
// Falls back to ErrorCodeFail when the runtime is not loaded.
func (s *Status) GetErrorCode() ErrorCode {
	if s.IsOK() {
		return ErrorCodeOK
	}

	mu.Lock()
	get := getErrorCodeFunc
	mu.Unlock()
	if get == nil {
		return ErrorCodeFail
	}
	return ErrorCode(get(s.handle))
}

// Value represents an ONNX Runtime value (tensor, sequence, map, etc.)
type Value interface {
	// Destroy releases the underlying resources
	Destroy() error
	// Type returns the type of the value
	Type() ValueType
}

// ValueType represents the type of an ONNX Runtime value
type ValueType int

const (
	ValueTypeUnknown ValueType = iota
	ValueTypeTensor
	ValueTypeSequence
	ValueTypeMap
	ValueTypeOpaque
	ValueTypeOptional
)

// Shape represents the shape of a tensor
type Shape []int64

// NewShape creates a new shape from dimensions
func NewShape(dims ...int64) Shape {
	return Shape(dims)
}

// MemoryInfo represents memory allocation information
type MemoryInfo struct {
	handle        uintptr // Pointer to OrtMemoryInfo
	name          string
	id            int
	memType       MemType
	allocatorType AllocatorType
	deviceID      int
}
