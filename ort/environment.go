package ort

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
)

// ortAPIVersion is the OrtApi version this binding was generated against.
// See tools/gen_ortapi.go.
const ortAPIVersion = 12

const envLogID = "onnx-bridge"

var (
	// mu guards all package-level environment state and function vars.
	mu       sync.Mutex
	refCount int
	ortLib   uintptr
	ortAPI   *OrtApi
	ortEnv   uintptr
	libPath  string
	logLevel = LoggingLevelWarning

	// ortCallMu serializes library teardown against in-flight native calls.
	// Read-locked for the duration of any call into the runtime, write-locked
	// only when the library handle is about to be closed. Always acquired
	// before mu.
	ortCallMu sync.RWMutex

	// initOrtMu serializes InitOrtOnce so that concurrent first calls do not
	// race on the one-time setup below.
	initOrtMu         sync.Mutex
	ortInitialized    bool
	tensorCtor        TensorConstructor
	defaultRunOptions uintptr
)

// InitializeEnvironment loads the ONNX Runtime shared library, resolves the
// API table and creates the global OrtEnv. Calls are reference counted: each
// successful call must be paired with a DestroyEnvironment call, and the
// native resources are only released when the count reaches zero.
func InitializeEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		refCount++
		return nil
	}

	if libPath == "" {
		return errors.New("library path not set, call SetSharedLibraryPath first")
	}

	lib, err := loadLibrary(libPath)
	if err != nil || lib == 0 {
		if err == nil {
			err = errors.New("library handle is null")
		}
		return fmt.Errorf("failed to load ONNX Runtime library from %q: %w", libPath, err)
	}

	apiBaseSym, err := getSymbol(lib, "OrtGetApiBase")
	if err != nil || apiBaseSym == 0 {
		_ = closeLibrary(lib)
		if err == nil {
			err = errors.New("symbol is null")
		}
		return fmt.Errorf("failed to resolve OrtGetApiBase in %q: %w", libPath, err)
	}

	var getApiBase func() *OrtApiBase
	purego.RegisterFunc(&getApiBase, apiBaseSym)
	apiBase := getApiBase()
	if apiBase == nil {
		_ = closeLibrary(lib)
		return errors.New("OrtGetApiBase returned null")
	}
	registerBaseFunctions(apiBase)

	var getApi func(uint32) *OrtApi
	purego.RegisterFunc(&getApi, apiBase.GetApi)
	api := getApi(ortAPIVersion)
	if api == nil {
		clearOrtFunctions()
		_ = closeLibrary(lib)
		return fmt.Errorf("failed to obtain ONNX Runtime API version %d: the loaded library is likely older than this binding", ortAPIVersion)
	}
	registerOrtFunctions(api)

	logIDBytes, logIDPtr := GoToCstring(envLogID)
	var env uintptr
	status := createEnvFunc(int32(logLevel), logIDPtr, &env)
	runtime.KeepAlive(logIDBytes)
	if status != 0 {
		errMsg := getErrorMessage(status)
		releaseStatus(status)
		clearOrtFunctions()
		_ = closeLibrary(lib)
		return fmt.Errorf("failed to create ONNX Runtime environment: %s", errMsg)
	}

	ortLib = lib
	ortAPI = api
	ortEnv = env
	refCount = 1
	return nil
}

// DestroyEnvironment decrements the environment reference count and releases
// all native resources when it reaches zero. Destroying a non-initialized
// environment is a no-op.
func DestroyEnvironment() error {
	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	if refCount == 0 {
		return nil
	}

	refCount--
	if refCount > 0 {
		return nil
	}

	if defaultRunOptions != 0 && releaseRunOptionsFunc != nil {
		releaseRunOptionsFunc(defaultRunOptions)
	}
	defaultRunOptions = 0
	tensorCtor = nil
	ortInitialized = false

	if ortEnv != 0 && releaseEnvFunc != nil {
		releaseEnvFunc(ortEnv)
	}
	ortEnv = 0
	ortAPI = nil
	clearOrtFunctions()

	lib := ortLib
	ortLib = 0
	if lib != 0 {
		if err := closeLibrary(lib); err != nil {
			return fmt.Errorf("failed to close ONNX Runtime library: %w", err)
		}
	}
	return nil
}

// IsInitialized reports whether the environment is currently initialized.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return refCount > 0
}

// SetSharedLibraryPath sets the path of the ONNX Runtime shared library to
// load. It must be called before InitializeEnvironment and cannot be changed
// while the environment is initialized.
func SetSharedLibraryPath(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		return errors.New("cannot change library path after environment is initialized")
	}
	libPath = path
	return nil
}

// SetLogLevel sets the logging level used when creating the environment. It
// cannot be changed while the environment is initialized.
func SetLogLevel(level LoggingLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		return errors.New("cannot change log level after environment is initialized")
	}
	logLevel = level
	return nil
}

// GetVersionString returns the version string of the loaded ONNX Runtime
// library, or "0.0.0-dev" when the environment is not initialized.
func GetVersionString() string {
	mu.Lock()
	versionFunc := getVersionStringFunc
	initialized := refCount > 0
	mu.Unlock()

	if !initialized || versionFunc == nil {
		return "0.0.0-dev"
	}
	return CstringToGo(versionFunc())
}

// InitOrtOnce performs the one-time runtime setup on behalf of a host
// embedding: it fixes the log level, initializes the environment, creates the
// shared default run options and records the tensor constructor used to
// materialize engine outputs. The first call wins; every later call is a
// no-op regardless of its arguments.
func InitOrtOnce(level LoggingLevel, ctor TensorConstructor) error {
	initOrtMu.Lock()
	defer initOrtMu.Unlock()

	mu.Lock()
	done := ortInitialized
	mu.Unlock()
	if done {
		return nil
	}

	if !IsInitialized() {
		if err := SetLogLevel(level); err != nil {
			return err
		}
	}
	if err := InitializeEnvironment(); err != nil {
		return err
	}

	mu.Lock()
	createRunOptions := createRunOptionsFunc
	mu.Unlock()

	var runOpts uintptr
	if createRunOptions != nil {
		if status := createRunOptions(&runOpts); status != 0 {
			err := statusError("failed to create default run options", status)
			_ = DestroyEnvironment()
			return err
		}
	}

	if ctor == nil {
		ctor = defaultTensorConstructor
	}

	mu.Lock()
	defaultRunOptions = runOpts
	tensorCtor = ctor
	ortInitialized = true
	mu.Unlock()
	return nil
}

// instanceDefaultRunOptions returns the run options handle created by
// InitOrtOnce, or 0 when no one-time setup has happened.
func instanceDefaultRunOptions() uintptr {
	mu.Lock()
	defer mu.Unlock()
	return defaultRunOptions
}

// instanceTensorCtor returns the registered tensor constructor, falling back
// to the package default when InitOrtOnce has not been called.
func instanceTensorCtor() TensorConstructor {
	mu.Lock()
	defer mu.Unlock()
	if tensorCtor == nil {
		return defaultTensorConstructor
	}
	return tensorCtor
}

// instanceEnv returns the global OrtEnv handle, failing when the environment
// has not been initialized.
func instanceEnv() (uintptr, error) {
	mu.Lock()
	defer mu.Unlock()
	if refCount == 0 || ortEnv == 0 {
		return 0, errors.New("ONNX Runtime not initialized")
	}
	return ortEnv, nil
}
