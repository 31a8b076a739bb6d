package ort

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// valueWithHandle is implemented by value types carrying a native OrtValue.
type valueWithHandle interface {
	ortValueHandle() uintptr
}

// AdvancedSession is the low-level session surface: fixed input and output
// values bound at creation time, inference into pre-allocated output tensors.
type AdvancedSession struct {
	runMu        sync.Mutex // serializes Run and orders Destroy after in-flight runs
	handle       uintptr
	inputNames   []string
	outputNames  []string
	inputValues  []Value
	outputValues []Value
}

// NewAdvancedSession creates a session for the given model with fixed input
// and output values. The output values must be pre-allocated tensors that
// receive the inference results on each Run.
func NewAdvancedSession(modelPath string, inputNames []string, outputNames []string,
	inputValues []Value, outputValues []Value, options *SessionOptions) (*AdvancedSession, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("at least one input name is required")
	}
	if len(outputNames) == 0 {
		return nil, fmt.Errorf("at least one output name is required")
	}
	if len(inputNames) != len(inputValues) {
		return nil, fmt.Errorf("input names/values count mismatch: %d names, %d values", len(inputNames), len(inputValues))
	}
	if len(outputNames) != len(outputValues) {
		return nil, fmt.Errorf("output names/values count mismatch: %d names, %d values", len(outputNames), len(outputValues))
	}
	if err := checkValueHandles("input", inputValues); err != nil {
		return nil, err
	}
	if err := checkValueHandles("output", outputValues); err != nil {
		return nil, err
	}

	var optionsHandle uintptr
	if options != nil {
		if options.handle == 0 {
			return nil, fmt.Errorf("session options handle is not initialized")
		}
		optionsHandle = options.handle
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	env := ortEnv
	createSession := createSessionFunc
	apiReady := ortAPI != nil
	mu.Unlock()
	if !apiReady || createSession == nil || env == 0 {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	pathPtr, pathBacking, err := goStringToORTChar(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model path: %w", err)
	}

	var handle uintptr
	status := createSession(env, pathPtr, optionsHandle, &handle)
	runtime.KeepAlive(pathBacking)
	if status != 0 {
		return nil, statusError("failed to create session", status)
	}

	session := &AdvancedSession{
		handle:       handle,
		inputNames:   append([]string(nil), inputNames...),
		outputNames:  append([]string(nil), outputNames...),
		inputValues:  append([]Value(nil), inputValues...),
		outputValues: append([]Value(nil), outputValues...),
	}
	runtime.SetFinalizer(session, func(s *AdvancedSession) {
		_ = s.Destroy()
	})
	return session, nil
}

func checkValueHandles(kind string, values []Value) error {
	for i, v := range values {
		withHandle, ok := v.(valueWithHandle)
		if !ok {
			return fmt.Errorf("unsupported value implementation at %s index %d: %T", kind, i, v)
		}
		if withHandle.ortValueHandle() == 0 {
			return fmt.Errorf("%s value at index %d has been destroyed", kind, i)
		}
	}
	return nil
}

// Run executes inference, reading the bound input values and writing into the
// bound output values. Runs on the same session are serialized.
func (s *AdvancedSession) Run() error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	handle := s.handle
	runSession := runSessionFunc
	apiReady := ortAPI != nil
	inputNames := s.inputNames
	outputNames := s.outputNames
	inputValues := s.inputValues
	outputValues := s.outputValues
	mu.Unlock()

	if handle == 0 {
		return fmt.Errorf("session has been destroyed")
	}
	if !apiReady || runSession == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	inputHandles, err := valueHandles("input", inputValues)
	if err != nil {
		return err
	}
	outputHandles, err := valueHandles("output", outputValues)
	if err != nil {
		return err
	}

	inputNameBackings, inputNamePtrs := makeCStringPointerArray(inputNames)
	outputNameBackings, outputNamePtrs := makeCStringPointerArray(outputNames)

	status := runSession(handle, 0,
		unsafe.SliceData(inputNamePtrs), unsafe.SliceData(inputHandles), uintptr(len(inputHandles)),
		unsafe.SliceData(outputNamePtrs), uintptr(len(outputHandles)), unsafe.SliceData(outputHandles))
	runtime.KeepAlive(inputNameBackings)
	runtime.KeepAlive(outputNameBackings)
	if status != 0 {
		return statusError("failed to run session", status)
	}
	return nil
}

func valueHandles(kind string, values []Value) ([]uintptr, error) {
	handles := make([]uintptr, len(values))
	for i, v := range values {
		withHandle, ok := v.(valueWithHandle)
		if !ok {
			return nil, fmt.Errorf("unsupported value implementation at %s index %d: %T", kind, i, v)
		}
		h := withHandle.ortValueHandle()
		if h == 0 {
			return nil, fmt.Errorf("%s value at index %d has been destroyed", kind, i)
		}
		handles[i] = h
	}
	return handles, nil
}

// Destroy releases the session resources. It waits for any in-flight Run to
// complete first. Calling Destroy more than once is a no-op.
func (s *AdvancedSession) Destroy() error {
	if s == nil {
		return nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	mu.Lock()
	handle := s.handle
	releaseSession := releaseSessionFunc
	s.handle = 0
	s.inputNames = nil
	s.outputNames = nil
	s.inputValues = nil
	s.outputValues = nil
	runtime.SetFinalizer(s, nil)
	mu.Unlock()

	if handle != 0 && releaseSession != nil {
		releaseSession(handle)
	}
	return nil
}

// sessionState tracks the InferenceSession lifecycle.
type sessionState int

const (
	sessionFresh sessionState = iota
	sessionLoaded
	sessionDisposed
)

// Lifecycle errors, word for word what a host embedding surfaces.
var (
	errAlreadyLoaded   = errors.New("Model already loaded. Cannot load model multiple times.")
	errAlreadyDisposed = errors.New("Session already disposed.")
	errNotInitialized  = errors.New("Session is not initialized.")
)

// ModelSource selects where LoadModel reads the model from.
type ModelSource interface {
	modelSource()
}

// ModelPath loads the model from a file. The path is re-encoded per platform
// (UTF-16 on Windows, UTF-8 elsewhere).
type ModelPath string

func (ModelPath) modelSource() {}

// ModelBuffer loads the model from an in-memory byte range. The range is only
// borrowed for the duration of LoadModel.
type ModelBuffer struct {
	Data       []byte
	ByteOffset int
	ByteLength int
}

func (ModelBuffer) modelSource() {}

func (b ModelBuffer) slice() ([]byte, error) {
	if b.ByteOffset < 0 || b.ByteLength < 0 {
		return nil, typeErrorf("model buffer offset and length must be non-negative")
	}
	end := b.ByteOffset + b.ByteLength
	if end > len(b.Data) {
		return nil, typeErrorf("model buffer range [%d, %d) exceeds buffer size %d", b.ByteOffset, end, len(b.Data))
	}
	return b.Data[b.ByteOffset:end], nil
}

// ValueMetadata describes one session input or output.
type ValueMetadata struct {
	Name     string
	IsTensor bool
	// ElementType is only meaningful when IsTensor is true.
	ElementType TensorElementDataType
	// SymbolicDimensions carries the dimension parameter name per axis, empty
	// string for fixed dimensions.
	SymbolicDimensions []string
	// Shape carries -1 for dimensions that are not fixed.
	Shape Shape
}

// InferenceSession is the host-facing session: load a model once, run it any
// number of times, dispose exactly once.
type InferenceSession struct {
	stateMu sync.Mutex // serializes state transitions and Run
	state   sessionState
	handle  uintptr

	inputNames  []string
	outputNames []string
	inputMeta   []ValueMetadata
	outputMeta  []ValueMetadata

	// preferredLocations has one entry per output name when the session was
	// loaded with a preferredOutputLocation option, nil otherwise. binding is
	// non-nil exactly when preferredLocations is.
	preferredLocations []DataLocation
	binding            *IoBinding
}

// NewInferenceSession creates a fresh, unloaded session.
func NewInferenceSession() *InferenceSession {
	return &InferenceSession{state: sessionFresh}
}

// LoadModel creates the native session from the given source and caches the
// model's input/output metadata. It may be called exactly once; a failed load
// leaves the session fresh so it can be retried.
func (s *InferenceSession) LoadModel(source ModelSource, options map[string]any) error {
	if s == nil {
		return errNotInitialized
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch s.state {
	case sessionDisposed:
		return errAlreadyDisposed
	case sessionLoaded:
		return errAlreadyLoaded
	}

	env, err := instanceEnv()
	if err != nil {
		return err
	}

	opts, err := ParseSessionOptions(options)
	if err != nil {
		return err
	}
	defer func() {
		_ = opts.Destroy()
	}()

	handle, err := createNativeSession(env, source, opts.handle)
	if err != nil {
		return err
	}

	inputNames, inputMeta, err := readSessionMetadata(handle, sessionSideInputs)
	if err != nil {
		releaseNativeSession(handle)
		return err
	}
	outputNames, outputMeta, err := readSessionMetadata(handle, sessionSideOutputs)
	if err != nil {
		releaseNativeSession(handle)
		return err
	}

	locations, err := ParsePreferredOutputLocations(options, outputNames)
	if err != nil {
		releaseNativeSession(handle)
		return err
	}

	var binding *IoBinding
	if locations != nil {
		binding, err = newIoBinding(handle)
		if err != nil {
			releaseNativeSession(handle)
			return err
		}
	}

	s.handle = handle
	s.inputNames = inputNames
	s.outputNames = outputNames
	s.inputMeta = inputMeta
	s.outputMeta = outputMeta
	s.preferredLocations = locations
	s.binding = binding
	s.state = sessionLoaded
	return nil
}

func createNativeSession(env uintptr, source ModelSource, optionsHandle uintptr) (uintptr, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	createSession := createSessionFunc
	createSessionFromArray := createSessionFromArrayFunc
	mu.Unlock()

	var handle uintptr
	switch src := source.(type) {
	case ModelPath:
		if src == "" {
			return 0, typeErrorf("model path cannot be empty")
		}
		if createSession == nil {
			return 0, fmt.Errorf("ONNX Runtime not initialized")
		}
		pathPtr, pathBacking, err := goStringToORTChar(string(src))
		if err != nil {
			return 0, fmt.Errorf("failed to encode model path: %w", err)
		}
		status := createSession(env, pathPtr, optionsHandle, &handle)
		runtime.KeepAlive(pathBacking)
		if status != 0 {
			return 0, statusError("failed to create session", status)
		}

	case ModelBuffer:
		data, err := src.slice()
		if err != nil {
			return 0, err
		}
		if len(data) == 0 {
			return 0, typeErrorf("model buffer is empty")
		}
		if createSessionFromArray == nil {
			return 0, fmt.Errorf("ONNX Runtime not initialized")
		}
		// The engine copies the model bytes during session creation, so the
		// slice only needs to stay alive for the call itself.
		// #nosec G103 -- data stays alive across the call via KeepAlive below.
		dataPtr := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
		status := createSessionFromArray(env, dataPtr, uintptr(len(data)), optionsHandle, &handle)
		runtime.KeepAlive(data)
		if status != 0 {
			return 0, statusError("failed to create session", status)
		}

	case nil:
		return 0, typeErrorf("model source is nil")
	default:
		return 0, typeErrorf("unsupported model source %T", source)
	}

	return handle, nil
}

func releaseNativeSession(handle uintptr) {
	mu.Lock()
	releaseSession := releaseSessionFunc
	mu.Unlock()
	if handle != 0 && releaseSession != nil {
		releaseSession(handle)
	}
}

// sessionSide selects which half of the model interface to read.
type sessionSide int

const (
	sessionSideInputs sessionSide = iota
	sessionSideOutputs
)

// readSessionMetadata reads the names and type metadata of one side of the
// model's interface, in declaration order. Name strings are allocated by the
// engine's default allocator and copied out.
func readSessionMetadata(handle uintptr, side sessionSide) ([]string, []ValueMetadata, error) {
	mu.Lock()
	countFunc := sessionGetInputCountFunc
	nameFunc := sessionGetInputNameFunc
	typeInfoFunc := sessionGetInputTypeInfoFunc
	if side == sessionSideOutputs {
		countFunc = sessionGetOutputCountFunc
		nameFunc = sessionGetOutputNameFunc
		typeInfoFunc = sessionGetOutputTypeInfoFunc
	}
	getAllocator := getAllocatorWithDefaultOptionsFunc
	free := allocatorFreeFunc
	mu.Unlock()
	if countFunc == nil || nameFunc == nil || typeInfoFunc == nil || getAllocator == nil || free == nil {
		return nil, nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var allocator uintptr
	if status := getAllocator(&allocator); status != 0 {
		return nil, nil, statusError("failed to get default allocator", status)
	}

	var count uintptr
	if status := countFunc(handle, &count); status != 0 {
		return nil, nil, statusError("failed to get value count", status)
	}

	names := make([]string, 0, count)
	meta := make([]ValueMetadata, 0, count)
	for i := uintptr(0); i < count; i++ {
		var namePtr uintptr
		if status := nameFunc(handle, i, allocator, &namePtr); status != 0 {
			return nil, nil, statusError("failed to get value name", status)
		}
		name := CstringToGo(namePtr)
		if status := free(allocator, namePtr); status != 0 {
			return nil, nil, statusError("failed to free value name", status)
		}

		var typeInfo uintptr
		if status := typeInfoFunc(handle, i, &typeInfo); status != 0 {
			return nil, nil, statusError("failed to get value type info", status)
		}
		m, err := readValueMetadata(name, typeInfo)
		releaseNativeTypeInfo(typeInfo)
		if err != nil {
			return nil, nil, err
		}

		names = append(names, name)
		meta = append(meta, m)
	}
	return names, meta, nil
}

func releaseNativeTypeInfo(typeInfo uintptr) {
	mu.Lock()
	release := releaseTypeInfoFunc
	mu.Unlock()
	if typeInfo != 0 && release != nil {
		release(typeInfo)
	}
}

// readValueMetadata extracts the metadata of one input or output from its
// type info handle. Non-tensor values only record their name.
func readValueMetadata(name string, typeInfo uintptr) (ValueMetadata, error) {
	mu.Lock()
	getOnnxType := getOnnxTypeFromTypeInfoFunc
	castToTensorInfo := castTypeInfoToTensorInfoFunc
	getElementType := getTensorElementTypeFunc
	getDimsCount := getDimensionsCountFunc
	getDims := getDimensionsFunc
	getSymbolicDims := getSymbolicDimensionsFunc
	mu.Unlock()
	if getOnnxType == nil || castToTensorInfo == nil {
		return ValueMetadata{}, fmt.Errorf("ONNX Runtime not initialized")
	}

	m := ValueMetadata{Name: name}

	var onnxType int32
	if status := getOnnxType(typeInfo, &onnxType); status != 0 {
		return ValueMetadata{}, statusError("failed to get ONNX type", status)
	}
	if ONNXType(onnxType) != ONNXTypeTensor {
		return m, nil
	}
	m.IsTensor = true

	// The tensor info is a view into the type info, not separately owned.
	var tensorInfo uintptr
	if status := castToTensorInfo(typeInfo, &tensorInfo); status != 0 {
		return ValueMetadata{}, statusError("failed to get tensor type info", status)
	}

	var rawElementType int32
	if status := getElementType(tensorInfo, &rawElementType); status != 0 {
		return ValueMetadata{}, statusError("failed to get element type", status)
	}
	m.ElementType = TensorElementDataType(rawElementType)

	var rank uintptr
	if status := getDimsCount(tensorInfo, &rank); status != 0 {
		return ValueMetadata{}, statusError("failed to get dimensions count", status)
	}

	m.Shape = make(Shape, rank)
	m.SymbolicDimensions = make([]string, rank)
	if rank > 0 {
		if status := getDims(tensorInfo, unsafe.SliceData(m.Shape), rank); status != 0 {
			return ValueMetadata{}, statusError("failed to get dimensions", status)
		}
		symPtrs := make([]uintptr, rank)
		if status := getSymbolicDims(tensorInfo, unsafe.SliceData(symPtrs), rank); status != 0 {
			return ValueMetadata{}, statusError("failed to get symbolic dimensions", status)
		}
		for i, p := range symPtrs {
			m.SymbolicDimensions[i] = CstringToGo(p)
		}
		// Free dimensions surface as -1 so the caller can tell them apart
		// from fixed dimensions of any legal size.
		for i := range m.Shape {
			if m.Shape[i] < 0 {
				m.Shape[i] = -1
			}
		}
	}

	return m, nil
}

// InputMetadata returns the metadata of the model's inputs in declaration
// order. The session must be loaded.
func (s *InferenceSession) InputMetadata() ([]ValueMetadata, error) {
	if s == nil {
		return nil, errNotInitialized
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	return append([]ValueMetadata(nil), s.inputMeta...), nil
}

// OutputMetadata returns the metadata of the model's outputs in declaration
// order. The session must be loaded.
func (s *InferenceSession) OutputMetadata() ([]ValueMetadata, error) {
	if s == nil {
		return nil, errNotInitialized
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	return append([]ValueMetadata(nil), s.outputMeta...), nil
}

// InputNames returns the model's input names in declaration order.
func (s *InferenceSession) InputNames() ([]string, error) {
	meta, err := s.InputMetadata()
	if err != nil {
		return nil, err
	}
	return metadataNames(meta), nil
}

// OutputNames returns the model's output names in declaration order.
func (s *InferenceSession) OutputNames() ([]string, error) {
	meta, err := s.OutputMetadata()
	if err != nil {
		return nil, err
	}
	return metadataNames(meta), nil
}

func metadataNames(meta []ValueMetadata) []string {
	names := make([]string, len(meta))
	for i, m := range meta {
		names[i] = m.Name
	}
	return names
}

// requireLoaded maps the session state to the lifecycle errors. Caller must
// hold stateMu.
func (s *InferenceSession) requireLoaded() error {
	switch s.state {
	case sessionDisposed:
		return errAlreadyDisposed
	case sessionFresh:
		return errNotInitialized
	}
	return nil
}

// Run executes one inference. feed maps input names to tensors; only names
// present in feed are passed to the engine, in declaration order. fetch
// selects the outputs to produce: a nil fetch map requests every output,
// otherwise only the named outputs are produced (nil entries request
// engine-allocated outputs). runOptions is an optional per-run option record;
// when nil the session falls back to the shared default run options.
func (s *InferenceSession) Run(feed map[string]HostTensor, fetch map[string]HostTensor, runOptions map[string]any) (map[string]HostTensor, error) {
	if s == nil {
		return nil, errNotInitialized
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.requireLoaded(); err != nil {
		return nil, err
	}

	// Resolve inputs and requested outputs in declaration order.
	var inputNames []string
	var inputTensors []HostTensor
	for _, name := range s.inputNames {
		t, ok := feed[name]
		if !ok {
			continue
		}
		if t == nil {
			return nil, typeErrorf("input %q is nil", name)
		}
		inputNames = append(inputNames, name)
		inputTensors = append(inputTensors, t)
	}

	var outputNames []string
	var outputLocations []DataLocation
	for i, name := range s.outputNames {
		if fetch != nil {
			if _, ok := fetch[name]; !ok {
				continue
			}
		}
		loc := DataLocationCPU
		if s.preferredLocations != nil {
			loc = s.preferredLocations[i]
		}
		outputNames = append(outputNames, name)
		outputLocations = append(outputLocations, loc)
	}

	// Per-run options override the shared defaults for this run only.
	runOptionsHandle := instanceDefaultRunOptions()
	if len(runOptions) > 0 {
		opts, err := ParseRunOptions(runOptions)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = opts.Destroy()
		}()
		runOptionsHandle = opts.handle
	}

	// Marshal inputs. The created OrtValues (and their pins) live until the
	// engine call returns.
	inputHandles := make([]uintptr, len(inputTensors))
	cleanups := make([]func(), 0, len(inputTensors))
	releaseInputs := func() {
		for _, h := range inputHandles {
			releaseOrtValue(h)
		}
		for _, cleanup := range cleanups {
			cleanup()
		}
	}
	for i, t := range inputTensors {
		handle, cleanup, err := tensorToOrtValue(t)
		if err != nil {
			releaseInputs()
			return nil, fmt.Errorf("failed to marshal input %q: %w", inputNames[i], err)
		}
		inputHandles[i] = handle
		cleanups = append(cleanups, cleanup)
	}
	defer releaseInputs()

	if s.binding != nil {
		return s.runWithBinding(runOptionsHandle, inputNames, inputHandles, outputNames, outputLocations)
	}
	return s.runDirect(runOptionsHandle, inputNames, inputHandles, outputNames)
}

// runDirect is the plain Run path: parallel name/value arrays, all outputs
// engine-allocated on the CPU.
func (s *InferenceSession) runDirect(runOptionsHandle uintptr, inputNames []string, inputHandles []uintptr, outputNames []string) (map[string]HostTensor, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	runSession := runSessionFunc
	mu.Unlock()
	if runSession == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	inputNameBackings, inputNamePtrs := makeCStringPointerArray(inputNames)
	outputNameBackings, outputNamePtrs := makeCStringPointerArray(outputNames)
	outputHandles := make([]uintptr, len(outputNames))

	status := runSession(s.handle, runOptionsHandle,
		unsafe.SliceData(inputNamePtrs), unsafe.SliceData(inputHandles), uintptr(len(inputHandles)),
		unsafe.SliceData(outputNamePtrs), uintptr(len(outputHandles)), unsafe.SliceData(outputHandles))
	runtime.KeepAlive(inputNameBackings)
	runtime.KeepAlive(outputNameBackings)
	if status != 0 {
		return nil, statusError("failed to run session", status)
	}

	return wrapOutputs(outputNames, outputHandles, nil)
}

// runWithBinding is the preferred-location path: inputs and outputs go
// through an OrtIoBinding so each output can land on its configured device.
func (s *InferenceSession) runWithBinding(runOptionsHandle uintptr, inputNames []string, inputHandles []uintptr, outputNames []string, outputLocations []DataLocation) (map[string]HostTensor, error) {
	if len(s.preferredLocations) != len(s.outputNames) {
		return nil, errors.New("Preferred output locations must have the same size as output names.")
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	runWithBinding := runWithBindingFunc
	mu.Unlock()
	if runWithBinding == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	defer s.binding.ClearBoundInputs()
	defer s.binding.ClearBoundOutputs()

	for i, name := range inputNames {
		if err := s.binding.BindInput(name, inputHandles[i]); err != nil {
			return nil, err
		}
	}

	cpuMemInfo, releaseCPU, err := cpuMemoryInfoHandle()
	if err != nil {
		return nil, err
	}
	defer releaseCPU()

	var gpuMemInfo uintptr
	for _, loc := range outputLocations {
		if loc == DataLocationGPUBuffer {
			var releaseGPU func()
			gpuMemInfo, releaseGPU, err = gpuBufferMemoryInfoHandle()
			if err != nil {
				return nil, err
			}
			defer releaseGPU()
			break
		}
	}

	for i, name := range outputNames {
		memInfo := cpuMemInfo
		if outputLocations[i] == DataLocationGPUBuffer {
			memInfo = gpuMemInfo
		}
		if err := s.binding.BindOutputToDevice(name, memInfo); err != nil {
			return nil, err
		}
	}

	if status := runWithBinding(s.handle, runOptionsHandle, s.binding.handle); status != 0 {
		return nil, statusError("failed to run session", status)
	}

	outputHandles, err := s.binding.BoundOutputValues()
	if err != nil {
		return nil, err
	}
	if len(outputHandles) != len(outputNames) {
		for _, h := range outputHandles {
			releaseOrtValue(h)
		}
		return nil, errors.New("Output count mismatch.")
	}

	return wrapOutputs(outputNames, outputHandles, outputLocations)
}

// wrapOutputs converts engine-produced OrtValues into host tensors, releasing
// every remaining native value if any conversion fails. locations may be nil,
// meaning all outputs are CPU-resident.
func wrapOutputs(names []string, handles []uintptr, locations []DataLocation) (map[string]HostTensor, error) {
	outputs := make(map[string]HostTensor, len(names))
	for i, name := range names {
		loc := DataLocationCPU
		if locations != nil {
			loc = locations[i]
		}
		t, err := ortValueToTensor(handles[i], loc)
		if err != nil {
			for _, h := range handles[i:] {
				releaseOrtValue(h)
			}
			for _, produced := range outputs {
				if d, ok := produced.(interface{ Destroy() error }); ok {
					_ = d.Destroy()
				}
			}
			return nil, fmt.Errorf("failed to convert output %q: %w", name, err)
		}
		outputs[name] = t
	}
	return outputs, nil
}

// Dispose releases the session and its binding. A disposed session cannot be
// reloaded; calling Dispose twice fails.
func (s *InferenceSession) Dispose() error {
	if s == nil {
		return errNotInitialized
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.requireLoaded(); err != nil {
		return err
	}

	if s.binding != nil {
		_ = s.binding.Destroy()
		s.binding = nil
	}
	releaseNativeSession(s.handle)
	s.handle = 0
	s.inputNames = nil
	s.outputNames = nil
	s.inputMeta = nil
	s.outputMeta = nil
	s.preferredLocations = nil
	s.state = sessionDisposed
	return nil
}

// EndProfiling stops profiling and returns the profile file name.
func (s *InferenceSession) EndProfiling() (string, error) {
	if s == nil {
		return "", errNotInitialized
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := s.requireLoaded(); err != nil {
		return "", err
	}

	mu.Lock()
	endProfiling := sessionEndProfilingFunc
	getAllocator := getAllocatorWithDefaultOptionsFunc
	free := allocatorFreeFunc
	mu.Unlock()
	if endProfiling == nil || getAllocator == nil || free == nil {
		return "", fmt.Errorf("ONNX Runtime not initialized")
	}

	var allocator uintptr
	if status := getAllocator(&allocator); status != 0 {
		return "", statusError("failed to get default allocator", status)
	}

	var filePtr uintptr
	if status := endProfiling(s.handle, allocator, &filePtr); status != 0 {
		return "", statusError("failed to end profiling", status)
	}
	file := CstringToGo(filePtr)
	if status := free(allocator, filePtr); status != 0 {
		return "", statusError("failed to free profile file name", status)
	}
	return file, nil
}
