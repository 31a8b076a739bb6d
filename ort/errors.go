package ort

import "fmt"

// TypeError reports programmatic misuse of the binding surface: wrong value
// kinds, ill-typed option values, tensor size/type mismatches. Engine failures
// are returned as plain errors carrying the engine message verbatim; callers
// discriminate the two with errors.As.
type TypeError struct {
	msg string
}

func (e *TypeError) Error() string {
	return e.msg
}

func typeErrorf(format string, args ...any) error {
	return &TypeError{msg: fmt.Sprintf(format, args...)}
}

// getErrorMessage extracts the message from an OrtStatus handle.
// Returns empty string for a null status or when the runtime is not loaded.
func getErrorMessage(status uintptr) string {
	if status == 0 {
		return ""
	}

	mu.Lock()
	get := getErrorMessageFunc
	mu.Unlock()

	if get == nil {
		return ""
	}
	return CstringToGo(get(status))
}

// releaseStatus frees an OrtStatus handle. Safe on null status and before init.
func releaseStatus(status uintptr) {
	if status == 0 {
		return
	}

	mu.Lock()
	release := releaseStatusFunc
	mu.Unlock()

	if release != nil {
		release(status)
	}
}

// statusError consumes a non-zero OrtStatus and converts it to an error with
// the given context prefix. The engine message is carried verbatim.
func statusError(context string, status uintptr) error {
	msg := getErrorMessage(status)
	releaseStatus(status)
	if msg == "" {
		return fmt.Errorf("%s", context)
	}
	return fmt.Errorf("%s: %s", context, msg)
}
