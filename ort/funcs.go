package ort

import "github.com/ebitengine/purego"

// Registered ONNX Runtime C API functions. All vars are guarded by mu and
// populated by registerOrtFunctions during environment initialization; tests
// install fakes and reset them via resetEnvironmentState.
var (
	getVersionStringFunc func() uintptr

	getErrorCodeFunc    func(uintptr) int32
	getErrorMessageFunc func(uintptr) uintptr
	releaseStatusFunc   func(uintptr)

	createEnvFunc  func(int32, uintptr, *uintptr) uintptr
	releaseEnvFunc func(uintptr)

	getAllocatorWithDefaultOptionsFunc func(*uintptr) uintptr
	allocatorFreeFunc                  func(uintptr, uintptr) uintptr

	createMemoryInfoFunc  func(uintptr, AllocatorType, int32, MemType, *uintptr) uintptr
	releaseMemoryInfoFunc func(uintptr)

	createSessionOptionsFunc                  func(*uintptr) uintptr
	releaseSessionOptionsFunc                 func(uintptr)
	setOptimizedModelFilePathFunc             func(uintptr, uintptr) uintptr
	setSessionExecutionModeFunc               func(uintptr, int32) uintptr
	enableProfilingFunc                       func(uintptr, uintptr) uintptr
	disableProfilingFunc                      func(uintptr) uintptr
	enableMemPatternFunc                      func(uintptr) uintptr
	disableMemPatternFunc                     func(uintptr) uintptr
	enableCpuMemArenaFunc                     func(uintptr) uintptr
	disableCpuMemArenaFunc                    func(uintptr) uintptr
	setSessionLogIdFunc                       func(uintptr, uintptr) uintptr
	setSessionLogVerbosityLevelFunc           func(uintptr, int32) uintptr
	setSessionLogSeverityLevelFunc            func(uintptr, int32) uintptr
	setSessionGraphOptimizationLevelFunc      func(uintptr, int32) uintptr
	setIntraOpNumThreadsFunc                  func(uintptr, int32) uintptr
	setInterOpNumThreadsFunc                  func(uintptr, int32) uintptr
	addFreeDimensionOverrideFunc              func(uintptr, uintptr, int64) uintptr
	addFreeDimensionOverrideByNameFunc        func(uintptr, uintptr, int64) uintptr
	addSessionConfigEntryFunc                 func(uintptr, uintptr, uintptr) uintptr
	sessionOptionsAppendExecutionProviderFunc func(uintptr, uintptr, *uintptr, *uintptr, uintptr) uintptr

	createRunOptionsFunc                  func(*uintptr) uintptr
	releaseRunOptionsFunc                 func(uintptr)
	runOptionsSetRunLogVerbosityLevelFunc func(uintptr, int32) uintptr
	runOptionsSetRunLogSeverityLevelFunc  func(uintptr, int32) uintptr
	runOptionsSetRunTagFunc               func(uintptr, uintptr) uintptr
	runOptionsSetTerminateFunc            func(uintptr) uintptr
	runOptionsUnsetTerminateFunc          func(uintptr) uintptr
	addRunConfigEntryFunc                 func(uintptr, uintptr, uintptr) uintptr

	createSessionFunc          func(uintptr, uintptr, uintptr, *uintptr) uintptr
	createSessionFromArrayFunc func(uintptr, uintptr, uintptr, uintptr, *uintptr) uintptr
	releaseSessionFunc         func(uintptr)
	sessionGetInputCountFunc   func(uintptr, *uintptr) uintptr
	sessionGetOutputCountFunc  func(uintptr, *uintptr) uintptr
	sessionGetInputNameFunc    func(uintptr, uintptr, uintptr, *uintptr) uintptr
	sessionGetOutputNameFunc   func(uintptr, uintptr, uintptr, *uintptr) uintptr
	sessionGetInputTypeInfoFunc  func(uintptr, uintptr, *uintptr) uintptr
	sessionGetOutputTypeInfoFunc func(uintptr, uintptr, *uintptr) uintptr
	sessionEndProfilingFunc      func(uintptr, uintptr, *uintptr) uintptr
	runSessionFunc func(session uintptr, runOptions uintptr, inputNames *uintptr, inputValues *uintptr, inputLen uintptr, outputNames *uintptr, outputLen uintptr, outputValues *uintptr) uintptr

	castTypeInfoToTensorInfoFunc func(uintptr, *uintptr) uintptr
	getOnnxTypeFromTypeInfoFunc  func(uintptr, *int32) uintptr
	releaseTypeInfoFunc          func(uintptr)

	createTensorAsOrtValueFunc         func(uintptr, *int64, uintptr, TensorElementDataType, *uintptr) uintptr
	createTensorWithDataAsOrtValueFunc func(uintptr, uintptr, uintptr, *int64, uintptr, TensorElementDataType, *uintptr) uintptr
	getValueTypeFunc                   func(uintptr, *int32) uintptr
	getTensorMutableDataFunc           func(uintptr, *uintptr) uintptr
	getTensorTypeAndShapeFunc          func(uintptr, *uintptr) uintptr
	getTensorElementTypeFunc           func(uintptr, *int32) uintptr
	getDimensionsCountFunc             func(uintptr, *uintptr) uintptr
	getDimensionsFunc                  func(uintptr, *int64, uintptr) uintptr
	getSymbolicDimensionsFunc          func(uintptr, *uintptr, uintptr) uintptr
	getTensorShapeElementCountFunc     func(uintptr, *uintptr) uintptr
	releaseTensorTypeAndShapeInfoFunc  func(uintptr)
	releaseValueFunc                   func(uintptr)

	fillStringTensorFunc          func(uintptr, *uintptr, uintptr) uintptr
	getStringTensorDataLengthFunc func(uintptr, *uintptr) uintptr
	getStringTensorContentFunc    func(uintptr, uintptr, uintptr, *uintptr, uintptr) uintptr

	createIoBindingFunc      func(uintptr, *uintptr) uintptr
	releaseIoBindingFunc     func(uintptr)
	bindInputFunc            func(uintptr, uintptr, uintptr) uintptr
	bindOutputFunc           func(uintptr, uintptr, uintptr) uintptr
	bindOutputToDeviceFunc   func(uintptr, uintptr, uintptr) uintptr
	getBoundOutputValuesFunc func(uintptr, uintptr, *uintptr, *uintptr) uintptr
	clearBoundInputsFunc     func(uintptr)
	clearBoundOutputsFunc    func(uintptr)
	runWithBindingFunc       func(uintptr, uintptr, uintptr) uintptr

	getAvailableProvidersFunc     func(*uintptr, *int32) uintptr
	releaseAvailableProvidersFunc func(uintptr, int32) uintptr
)

// registerBaseFunctions binds the OrtApiBase entries. Caller must hold mu.
func registerBaseFunctions(base *OrtApiBase) {
	purego.RegisterFunc(&getVersionStringFunc, base.GetVersionString)
}

// registerOrtFunctions binds the function pointer table to the package-level
// function vars. Caller must hold mu.
func registerOrtFunctions(api *OrtApi) {
	purego.RegisterFunc(&getErrorCodeFunc, api.GetErrorCode)
	purego.RegisterFunc(&getErrorMessageFunc, api.GetErrorMessage)
	purego.RegisterFunc(&releaseStatusFunc, api.ReleaseStatus)

	purego.RegisterFunc(&createEnvFunc, api.CreateEnv)
	purego.RegisterFunc(&releaseEnvFunc, api.ReleaseEnv)

	purego.RegisterFunc(&getAllocatorWithDefaultOptionsFunc, api.GetAllocatorWithDefaultOptions)
	purego.RegisterFunc(&allocatorFreeFunc, api.AllocatorFree)

	purego.RegisterFunc(&createMemoryInfoFunc, api.CreateMemoryInfo)
	purego.RegisterFunc(&releaseMemoryInfoFunc, api.ReleaseMemoryInfo)

	purego.RegisterFunc(&createSessionOptionsFunc, api.CreateSessionOptions)
	purego.RegisterFunc(&releaseSessionOptionsFunc, api.ReleaseSessionOptions)
	purego.RegisterFunc(&setOptimizedModelFilePathFunc, api.SetOptimizedModelFilePath)
	purego.RegisterFunc(&setSessionExecutionModeFunc, api.SetSessionExecutionMode)
	purego.RegisterFunc(&enableProfilingFunc, api.EnableProfiling)
	purego.RegisterFunc(&disableProfilingFunc, api.DisableProfiling)
	purego.RegisterFunc(&enableMemPatternFunc, api.EnableMemPattern)
	purego.RegisterFunc(&disableMemPatternFunc, api.DisableMemPattern)
	purego.RegisterFunc(&enableCpuMemArenaFunc, api.EnableCpuMemArena)
	purego.RegisterFunc(&disableCpuMemArenaFunc, api.DisableCpuMemArena)
	purego.RegisterFunc(&setSessionLogIdFunc, api.SetSessionLogId)
	purego.RegisterFunc(&setSessionLogVerbosityLevelFunc, api.SetSessionLogVerbosityLevel)
	purego.RegisterFunc(&setSessionLogSeverityLevelFunc, api.SetSessionLogSeverityLevel)
	purego.RegisterFunc(&setSessionGraphOptimizationLevelFunc, api.SetSessionGraphOptimizationLevel)
	purego.RegisterFunc(&setIntraOpNumThreadsFunc, api.SetIntraOpNumThreads)
	purego.RegisterFunc(&setInterOpNumThreadsFunc, api.SetInterOpNumThreads)
	purego.RegisterFunc(&addFreeDimensionOverrideFunc, api.AddFreeDimensionOverride)
	purego.RegisterFunc(&addFreeDimensionOverrideByNameFunc, api.AddFreeDimensionOverrideByName)
	purego.RegisterFunc(&addSessionConfigEntryFunc, api.AddSessionConfigEntry)
	purego.RegisterFunc(&sessionOptionsAppendExecutionProviderFunc, api.SessionOptionsAppendExecutionProvider)

	purego.RegisterFunc(&createRunOptionsFunc, api.CreateRunOptions)
	purego.RegisterFunc(&releaseRunOptionsFunc, api.ReleaseRunOptions)
	purego.RegisterFunc(&runOptionsSetRunLogVerbosityLevelFunc, api.RunOptionsSetRunLogVerbosityLevel)
	purego.RegisterFunc(&runOptionsSetRunLogSeverityLevelFunc, api.RunOptionsSetRunLogSeverityLevel)
	purego.RegisterFunc(&runOptionsSetRunTagFunc, api.RunOptionsSetRunTag)
	purego.RegisterFunc(&runOptionsSetTerminateFunc, api.RunOptionsSetTerminate)
	purego.RegisterFunc(&runOptionsUnsetTerminateFunc, api.RunOptionsUnsetTerminate)
	purego.RegisterFunc(&addRunConfigEntryFunc, api.AddRunConfigEntry)

	purego.RegisterFunc(&createSessionFunc, api.CreateSession)
	purego.RegisterFunc(&createSessionFromArrayFunc, api.CreateSessionFromArray)
	purego.RegisterFunc(&releaseSessionFunc, api.ReleaseSession)
	purego.RegisterFunc(&sessionGetInputCountFunc, api.SessionGetInputCount)
	purego.RegisterFunc(&sessionGetOutputCountFunc, api.SessionGetOutputCount)
	purego.RegisterFunc(&sessionGetInputNameFunc, api.SessionGetInputName)
	purego.RegisterFunc(&sessionGetOutputNameFunc, api.SessionGetOutputName)
	purego.RegisterFunc(&sessionGetInputTypeInfoFunc, api.SessionGetInputTypeInfo)
	purego.RegisterFunc(&sessionGetOutputTypeInfoFunc, api.SessionGetOutputTypeInfo)
	purego.RegisterFunc(&sessionEndProfilingFunc, api.SessionEndProfiling)
	purego.RegisterFunc(&runSessionFunc, api.Run)

	purego.RegisterFunc(&castTypeInfoToTensorInfoFunc, api.CastTypeInfoToTensorInfo)
	purego.RegisterFunc(&getOnnxTypeFromTypeInfoFunc, api.GetOnnxTypeFromTypeInfo)
	purego.RegisterFunc(&releaseTypeInfoFunc, api.ReleaseTypeInfo)

	purego.RegisterFunc(&createTensorAsOrtValueFunc, api.CreateTensorAsOrtValue)
	purego.RegisterFunc(&createTensorWithDataAsOrtValueFunc, api.CreateTensorWithDataAsOrtValue)
	purego.RegisterFunc(&getValueTypeFunc, api.GetValueType)
	purego.RegisterFunc(&getTensorMutableDataFunc, api.GetTensorMutableData)
	purego.RegisterFunc(&getTensorTypeAndShapeFunc, api.GetTensorTypeAndShape)
	purego.RegisterFunc(&getTensorElementTypeFunc, api.GetTensorElementType)
	purego.RegisterFunc(&getDimensionsCountFunc, api.GetDimensionsCount)
	purego.RegisterFunc(&getDimensionsFunc, api.GetDimensions)
	purego.RegisterFunc(&getSymbolicDimensionsFunc, api.GetSymbolicDimensions)
	purego.RegisterFunc(&getTensorShapeElementCountFunc, api.GetTensorShapeElementCount)
	purego.RegisterFunc(&releaseTensorTypeAndShapeInfoFunc, api.ReleaseTensorTypeAndShapeInfo)
	purego.RegisterFunc(&releaseValueFunc, api.ReleaseValue)

	purego.RegisterFunc(&fillStringTensorFunc, api.FillStringTensor)
	purego.RegisterFunc(&getStringTensorDataLengthFunc, api.GetStringTensorDataLength)
	purego.RegisterFunc(&getStringTensorContentFunc, api.GetStringTensorContent)

	purego.RegisterFunc(&createIoBindingFunc, api.CreateIoBinding)
	purego.RegisterFunc(&releaseIoBindingFunc, api.ReleaseIoBinding)
	purego.RegisterFunc(&bindInputFunc, api.BindInput)
	purego.RegisterFunc(&bindOutputFunc, api.BindOutput)
	purego.RegisterFunc(&bindOutputToDeviceFunc, api.BindOutputToDevice)
	purego.RegisterFunc(&getBoundOutputValuesFunc, api.GetBoundOutputValues)
	purego.RegisterFunc(&clearBoundInputsFunc, api.ClearBoundInputs)
	purego.RegisterFunc(&clearBoundOutputsFunc, api.ClearBoundOutputs)
	purego.RegisterFunc(&runWithBindingFunc, api.RunWithBinding)

	purego.RegisterFunc(&getAvailableProvidersFunc, api.GetAvailableProviders)
	purego.RegisterFunc(&releaseAvailableProvidersFunc, api.ReleaseAvailableProviders)
}

// clearOrtFunctions resets all registered function vars. Caller must hold mu.
func clearOrtFunctions() {
	getVersionStringFunc = nil
	getErrorCodeFunc = nil
	getErrorMessageFunc = nil
	releaseStatusFunc = nil
	createEnvFunc = nil
	releaseEnvFunc = nil
	getAllocatorWithDefaultOptionsFunc = nil
	allocatorFreeFunc = nil
	createMemoryInfoFunc = nil
	releaseMemoryInfoFunc = nil
	createSessionOptionsFunc = nil
	releaseSessionOptionsFunc = nil
	setOptimizedModelFilePathFunc = nil
	setSessionExecutionModeFunc = nil
	enableProfilingFunc = nil
	disableProfilingFunc = nil
	enableMemPatternFunc = nil
	disableMemPatternFunc = nil
	enableCpuMemArenaFunc = nil
	disableCpuMemArenaFunc = nil
	setSessionLogIdFunc = nil
	setSessionLogVerbosityLevelFunc = nil
	setSessionLogSeverityLevelFunc = nil
	setSessionGraphOptimizationLevelFunc = nil
	setIntraOpNumThreadsFunc = nil
	setInterOpNumThreadsFunc = nil
	addFreeDimensionOverrideFunc = nil
	addFreeDimensionOverrideByNameFunc = nil
	addSessionConfigEntryFunc = nil
	sessionOptionsAppendExecutionProviderFunc = nil
	createRunOptionsFunc = nil
	releaseRunOptionsFunc = nil
	runOptionsSetRunLogVerbosityLevelFunc = nil
	runOptionsSetRunLogSeverityLevelFunc = nil
	runOptionsSetRunTagFunc = nil
	runOptionsSetTerminateFunc = nil
	runOptionsUnsetTerminateFunc = nil
	addRunConfigEntryFunc = nil
	createSessionFunc = nil
	createSessionFromArrayFunc = nil
	releaseSessionFunc = nil
	sessionGetInputCountFunc = nil
	sessionGetOutputCountFunc = nil
	sessionGetInputNameFunc = nil
	sessionGetOutputNameFunc = nil
	sessionGetInputTypeInfoFunc = nil
	sessionGetOutputTypeInfoFunc = nil
	sessionEndProfilingFunc = nil
	runSessionFunc = nil
	castTypeInfoToTensorInfoFunc = nil
	getOnnxTypeFromTypeInfoFunc = nil
	releaseTypeInfoFunc = nil
	createTensorAsOrtValueFunc = nil
	createTensorWithDataAsOrtValueFunc = nil
	getValueTypeFunc = nil
	getTensorMutableDataFunc = nil
	getTensorTypeAndShapeFunc = nil
	getTensorElementTypeFunc = nil
	getDimensionsCountFunc = nil
	getDimensionsFunc = nil
	getSymbolicDimensionsFunc = nil
	getTensorShapeElementCountFunc = nil
	releaseTensorTypeAndShapeInfoFunc = nil
	releaseValueFunc = nil
	fillStringTensorFunc = nil
	getStringTensorDataLengthFunc = nil
	getStringTensorContentFunc = nil
	createIoBindingFunc = nil
	releaseIoBindingFunc = nil
	bindInputFunc = nil
	bindOutputFunc = nil
	bindOutputToDeviceFunc = nil
	getBoundOutputValuesFunc = nil
	clearBoundInputsFunc = nil
	clearBoundOutputsFunc = nil
	runWithBindingFunc = nil
	getAvailableProvidersFunc = nil
	releaseAvailableProvidersFunc = nil
}
