package ort

import "fmt"

// LoggingLevel represents the logging verbosity level
type LoggingLevel int

const (
	LoggingLevelVerbose LoggingLevel = iota
	LoggingLevelInfo
	LoggingLevelWarning
	LoggingLevelError
	LoggingLevelFatal
)

// ErrorCode represents ONNX Runtime error codes
type ErrorCode int

const (
	ErrorCodeOK ErrorCode = iota
	ErrorCodeFail
	ErrorCodeInvalidArgument
	ErrorCodeNoSuchFile
	ErrorCodeNoModel
	ErrorCodeEngineError
	ErrorCodeRuntimeException
	ErrorCodeInvalidProtobuf
	ErrorCodeModelLoaded
	ErrorCodeNotImplemented
	ErrorCodeInvalidGraph
	ErrorCodeEPFail
	ErrorCodeModelLoadCanceled
	ErrorCodeModelRequiresCompilation
)

// TensorElementDataType represents the data type of tensor elements
type TensorElementDataType int

const (
	TensorElementDataTypeUndefined TensorElementDataType = iota
	TensorElementDataTypeFloat
	TensorElementDataTypeUint8
	TensorElementDataTypeInt8
	TensorElementDataTypeUint16
	TensorElementDataTypeInt16
	TensorElementDataTypeInt32
	TensorElementDataTypeInt64
	TensorElementDataTypeString
	TensorElementDataTypeBool
	TensorElementDataTypeFloat16
	TensorElementDataTypeDouble
	TensorElementDataTypeUint32
	TensorElementDataTypeUint64
	TensorElementDataTypeComplex64
	TensorElementDataTypeComplex128
	TensorElementDataTypeBFloat16
	TensorElementDataTypeFloat8E4M3FN
	TensorElementDataTypeFloat8E4M3FNUZ
	TensorElementDataTypeFloat8E5M2
	TensorElementDataTypeFloat8E5M2FNUZ
	TensorElementDataTypeUint4
	TensorElementDataTypeInt4
)

// String returns the ONNX name of the element type.
func (t TensorElementDataType) String() string {
	switch t {
	case TensorElementDataTypeFloat:
		return "float32"
	case TensorElementDataTypeUint8:
		return "uint8"
	case TensorElementDataTypeInt8:
		return "int8"
	case TensorElementDataTypeUint16:
		return "uint16"
	case TensorElementDataTypeInt16:
		return "int16"
	case TensorElementDataTypeInt32:
		return "int32"
	case TensorElementDataTypeInt64:
		return "int64"
	case TensorElementDataTypeString:
		return "string"
	case TensorElementDataTypeBool:
		return "bool"
	case TensorElementDataTypeFloat16:
		return "float16"
	case TensorElementDataTypeDouble:
		return "float64"
	case TensorElementDataTypeUint32:
		return "uint32"
	case TensorElementDataTypeUint64:
		return "uint64"
	default:
		return fmt.Sprintf("TensorElementDataType(%d)", int(t))
	}
}

// ElementSize returns the per-element byte size for fixed-width element types.
// String and sub-byte types return 0 (no fixed per-element byte width).
func (t TensorElementDataType) ElementSize() uintptr {
	switch t {
	case TensorElementDataTypeUint8, TensorElementDataTypeInt8, TensorElementDataTypeBool,
		TensorElementDataTypeFloat8E4M3FN, TensorElementDataTypeFloat8E4M3FNUZ,
		TensorElementDataTypeFloat8E5M2, TensorElementDataTypeFloat8E5M2FNUZ:
		return 1
	case TensorElementDataTypeUint16, TensorElementDataTypeInt16,
		TensorElementDataTypeFloat16, TensorElementDataTypeBFloat16:
		return 2
	case TensorElementDataTypeFloat, TensorElementDataTypeInt32, TensorElementDataTypeUint32:
		return 4
	case TensorElementDataTypeDouble, TensorElementDataTypeInt64, TensorElementDataTypeUint64,
		TensorElementDataTypeComplex64:
		return 8
	case TensorElementDataTypeComplex128:
		return 16
	default:
		return 0
	}
}

// DataLocation identifies where a tensor's backing memory lives. The wire
// strings match the host library's data-location constants.
type DataLocation string

const (
	DataLocationCPU       DataLocation = "cpu"
	DataLocationGPUBuffer DataLocation = "gpu-buffer"
)

// ParseDataLocation decodes a data-location wire string.
func ParseDataLocation(raw string) (DataLocation, error) {
	switch raw {
	case string(DataLocationCPU):
		return DataLocationCPU, nil
	case string(DataLocationGPUBuffer):
		return DataLocationGPUBuffer, nil
	default:
		return "", typeErrorf("unrecognized data location %q", raw)
	}
}

// AllocatorType represents the type of memory allocator
type AllocatorType int

const (
	AllocatorTypeInvalid AllocatorType = -1
	AllocatorTypeDevice  AllocatorType = 0
	AllocatorTypeArena   AllocatorType = 1
)

// MemType represents memory types for allocated memory
type MemType int

const (
	MemTypeCPUInput  MemType = -2
	MemTypeCPUOutput MemType = -1
	MemTypeCPU       MemType = MemTypeCPUOutput
	MemTypeDefault   MemType = 0
)

// GraphOptimizationLevel represents the level of graph optimizations
type GraphOptimizationLevel int

const (
	GraphOptimizationLevelDisableAll     GraphOptimizationLevel = 0
	GraphOptimizationLevelEnableBasic    GraphOptimizationLevel = 1
	GraphOptimizationLevelEnableExtended GraphOptimizationLevel = 2
	GraphOptimizationLevelEnableAll      GraphOptimizationLevel = 99
)

// ExecutionMode represents the execution mode for the session
type ExecutionMode int

const (
	ExecutionModeSequential ExecutionMode = iota
	ExecutionModeParallel
)

// ONNXType represents the type of an ONNX value
type ONNXType int

const (
	ONNXTypeUnknown ONNXType = iota
	ONNXTypeTensor
	ONNXTypeSequence
	ONNXTypeMap
	ONNXTypeOpaque
	ONNXTypeSparseMap
	ONNXTypeOptional
)
