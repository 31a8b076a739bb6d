package ort

import (
	"fmt"
	"math"
	"sort"
)

// The option records below mirror the loosely-typed option bags a host
// embedding hands over: map[string]any values where numbers may arrive as any
// integer or float kind. Unknown keys are ignored; recognized keys with the
// wrong type fail with a *TypeError naming the key.

const preferredOutputLocationKey = "preferredOutputLocation"

var graphOptimizationLevels = map[string]GraphOptimizationLevel{
	"disabled": GraphOptimizationLevelDisableAll,
	"basic":    GraphOptimizationLevelEnableBasic,
	"extended": GraphOptimizationLevelEnableExtended,
	"all":      GraphOptimizationLevelEnableAll,
}

var executionModes = map[string]ExecutionMode{
	"sequential": ExecutionModeSequential,
	"parallel":   ExecutionModeParallel,
}

// executionProviderNames maps host backend names to the names ONNX Runtime's
// generic provider registration understands. Names without a mapping are
// passed through unchanged and left to the engine to accept or reject.
var executionProviderNames = map[string]string{
	"cuda":     "CUDA",
	"tensorrt": "TensorRT",
	"coreml":   "CoreML",
	"dml":      "DML",
	"webgpu":   "WebGPU",
	"qnn":      "QNN",
	"xnnpack":  "XNNPACK",
}

// ParseSessionOptions translates a session option record into a native
// SessionOptions handle. On error the partially-built handle is destroyed and
// nil is returned.
func ParseSessionOptions(record map[string]any) (*SessionOptions, error) {
	opts, err := NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if err := applySessionOptions(opts, record); err != nil {
		_ = opts.Destroy()
		return nil, err
	}
	return opts, nil
}

func applySessionOptions(opts *SessionOptions, record map[string]any) error {
	if raw, ok := record["graphOptimizationLevel"]; ok {
		name, ok := raw.(string)
		if !ok {
			return typeErrorf("'graphOptimizationLevel' must be a string")
		}
		level, ok := graphOptimizationLevels[name]
		if !ok {
			return typeErrorf("'graphOptimizationLevel' must be one of 'disabled', 'basic', 'extended' or 'all'; got %q", name)
		}
		if err := opts.SetGraphOptimizationLevel(level); err != nil {
			return err
		}
	}

	if raw, ok := record["executionMode"]; ok {
		name, ok := raw.(string)
		if !ok {
			return typeErrorf("'executionMode' must be a string")
		}
		mode, ok := executionModes[name]
		if !ok {
			return typeErrorf("'executionMode' must be 'sequential' or 'parallel'; got %q", name)
		}
		if err := opts.SetExecutionMode(mode); err != nil {
			return err
		}
	}

	if n, ok, err := recordInt(record, "intraOpNumThreads"); err != nil {
		return err
	} else if ok {
		if n < 0 {
			return typeErrorf("'intraOpNumThreads' must be non-negative; got %d", n)
		}
		if err := opts.SetIntraOpNumThreads(int(n)); err != nil {
			return err
		}
	}

	if n, ok, err := recordInt(record, "interOpNumThreads"); err != nil {
		return err
	} else if ok {
		if n < 0 {
			return typeErrorf("'interOpNumThreads' must be non-negative; got %d", n)
		}
		if err := opts.SetInterOpNumThreads(int(n)); err != nil {
			return err
		}
	}

	if n, ok, err := recordInt(record, "logSeverityLevel"); err != nil {
		return err
	} else if ok {
		if n < 0 || n > 4 {
			return typeErrorf("'logSeverityLevel' must be in range [0, 4]; got %d", n)
		}
		if err := opts.SetLogSeverityLevel(int(n)); err != nil {
			return err
		}
	}

	if n, ok, err := recordInt(record, "logVerbosityLevel"); err != nil {
		return err
	} else if ok {
		if n < 0 {
			return typeErrorf("'logVerbosityLevel' must be non-negative; got %d", n)
		}
		if err := opts.SetLogVerbosityLevel(int(n)); err != nil {
			return err
		}
	}

	if s, ok, err := recordString(record, "logId"); err != nil {
		return err
	} else if ok {
		if err := opts.SetLogID(s); err != nil {
			return err
		}
	}

	if s, ok, err := recordString(record, "optimizedModelFilePath"); err != nil {
		return err
	} else if ok {
		if err := opts.SetOptimizedModelFilePath(s); err != nil {
			return err
		}
	}

	if enable, ok, err := recordBool(record, "enableProfiling"); err != nil {
		return err
	} else if ok {
		if enable {
			prefix, _, err := recordString(record, "profileFilePrefix")
			if err != nil {
				return err
			}
			if prefix == "" {
				prefix = "onnxruntime_profile"
			}
			if err := opts.EnableProfiling(prefix); err != nil {
				return err
			}
		} else if err := opts.DisableProfiling(); err != nil {
			return err
		}
	}

	if enable, ok, err := recordBool(record, "enableCpuMemArena"); err != nil {
		return err
	} else if ok {
		var err error
		if enable {
			err = opts.EnableCpuMemArena()
		} else {
			err = opts.DisableCpuMemArena()
		}
		if err != nil {
			return err
		}
	}

	if enable, ok, err := recordBool(record, "enableMemPattern"); err != nil {
		return err
	} else if ok {
		var err error
		if enable {
			err = opts.EnableMemPattern()
		} else {
			err = opts.DisableMemPattern()
		}
		if err != nil {
			return err
		}
	}

	// Free dimension overrides must land before providers are appended so the
	// fixed shapes are visible to provider-specific graph partitioning.
	if raw, ok := record["freeDimensionOverrides"]; ok {
		overrides, ok := raw.(map[string]any)
		if !ok {
			return typeErrorf("'freeDimensionOverrides' must be a record of dimension name to value")
		}
		names := make([]string, 0, len(overrides))
		for name := range overrides {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value, ok := intValue(overrides[name])
			if !ok || value < 0 {
				return typeErrorf("'freeDimensionOverrides' entry %q must be a non-negative integer", name)
			}
			if err := opts.AddFreeDimensionOverrideByName(name, value); err != nil {
				return err
			}
		}
	}

	if raw, ok := record["freeDimensionOverridesByDenotation"]; ok {
		overrides, ok := raw.(map[string]any)
		if !ok {
			return typeErrorf("'freeDimensionOverridesByDenotation' must be a record of dimension denotation to value")
		}
		denotations := make([]string, 0, len(overrides))
		for denotation := range overrides {
			denotations = append(denotations, denotation)
		}
		sort.Strings(denotations)
		for _, denotation := range denotations {
			value, ok := intValue(overrides[denotation])
			if !ok || value < 0 {
				return typeErrorf("'freeDimensionOverridesByDenotation' entry %q must be a non-negative integer", denotation)
			}
			if err := opts.AddFreeDimensionOverride(denotation, value); err != nil {
				return err
			}
		}
	}

	if raw, ok := record["executionProviders"]; ok {
		if err := applyExecutionProviders(opts, raw); err != nil {
			return err
		}
	}

	if raw, ok := record["externalData"]; ok {
		if err := checkExternalData(raw); err != nil {
			return err
		}
	}

	if raw, ok := record["extra"]; ok {
		extra, ok := raw.(map[string]any)
		if !ok {
			return typeErrorf("'extra' must be a record")
		}
		entries := map[string]string{}
		if err := flattenConfigEntries("", extra, entries); err != nil {
			return err
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := opts.AddConfigEntry(k, entries[k]); err != nil {
				return err
			}
		}
	}

	return nil
}

func applyExecutionProviders(opts *SessionOptions, raw any) error {
	list, ok := raw.([]any)
	if !ok {
		return typeErrorf("'executionProviders' must be a list")
	}

	for _, entry := range list {
		var name string
		providerOptions := map[string]string{}

		switch e := entry.(type) {
		case string:
			name = e
		case map[string]any:
			rawName, ok := e["name"].(string)
			if !ok || rawName == "" {
				return typeErrorf("execution provider entry must carry a 'name' string")
			}
			name = rawName
			for k, v := range e {
				if k == "name" {
					continue
				}
				s, ok := configValueString(v)
				if !ok {
					return typeErrorf("execution provider option %q must be a string, number or boolean", k)
				}
				providerOptions[k] = s
			}
		default:
			return typeErrorf("execution provider entry must be a string or a record")
		}

		// The CPU provider is always registered; an explicit request is a no-op.
		if name == "cpu" {
			continue
		}
		epName := name
		if mapped, ok := executionProviderNames[name]; ok {
			epName = mapped
		}
		if err := opts.AppendExecutionProvider(epName, providerOptions); err != nil {
			return err
		}
	}
	return nil
}

// checkExternalData validates the shape of the externalData option. Loading
// external initializers from host-provided buffers is not wired to the bound
// API surface, so a non-empty list fails the same way a build without
// external-data support does.
func checkExternalData(raw any) error {
	list, ok := raw.([]any)
	if !ok {
		return typeErrorf("'externalData' must be a list")
	}
	for _, entry := range list {
		switch e := entry.(type) {
		case string:
		case map[string]any:
			if _, ok := e["path"].(string); !ok {
				return typeErrorf("'externalData' entry must carry a 'path' string")
			}
		default:
			return typeErrorf("'externalData' entry must be a string or a record")
		}
	}
	if len(list) > 0 {
		return fmt.Errorf("external initializers are not supported in this build")
	}
	return nil
}

// flattenConfigEntries flattens nested records into dot-separated config keys.
func flattenConfigEntries(prefix string, record map[string]any, out map[string]string) error {
	for k, v := range record {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flattenConfigEntries(key, val, out); err != nil {
				return err
			}
		default:
			s, ok := configValueString(v)
			if !ok {
				return typeErrorf("config entry %q must be a string, number or boolean", key)
			}
			out[key] = s
		}
	}
	return nil
}

// ParsePreferredOutputLocations reads the preferredOutputLocation key of a
// session option record and resolves it against the session's output names.
// Returns nil when the key is absent; otherwise the result has exactly one
// location per output name, defaulting to CPU.
func ParsePreferredOutputLocations(record map[string]any, outputNames []string) ([]DataLocation, error) {
	raw, ok := record[preferredOutputLocationKey]
	if !ok || raw == nil {
		return nil, nil
	}

	locations := make([]DataLocation, len(outputNames))
	for i := range locations {
		locations[i] = DataLocationCPU
	}

	switch v := raw.(type) {
	case string:
		loc, err := ParseDataLocation(v)
		if err != nil {
			return nil, err
		}
		for i := range locations {
			locations[i] = loc
		}
	case map[string]any:
		index := make(map[string]int, len(outputNames))
		for i, name := range outputNames {
			index[name] = i
		}
		for name, rawLoc := range v {
			i, ok := index[name]
			if !ok {
				return nil, typeErrorf("'%s' specifies unknown output name %q", preferredOutputLocationKey, name)
			}
			s, ok := rawLoc.(string)
			if !ok {
				return nil, typeErrorf("'%s' entry %q must be a string", preferredOutputLocationKey, name)
			}
			loc, err := ParseDataLocation(s)
			if err != nil {
				return nil, err
			}
			locations[i] = loc
		}
	default:
		return nil, typeErrorf("'%s' must be a string or a record of output name to location", preferredOutputLocationKey)
	}

	return locations, nil
}

// ParseRunOptions translates a per-run option record into a native RunOptions
// handle. On error the partially-built handle is destroyed and nil is
// returned.
func ParseRunOptions(record map[string]any) (*RunOptions, error) {
	opts, err := NewRunOptions()
	if err != nil {
		return nil, err
	}
	if err := applyRunOptions(opts, record); err != nil {
		_ = opts.Destroy()
		return nil, err
	}
	return opts, nil
}

func applyRunOptions(opts *RunOptions, record map[string]any) error {
	if n, ok, err := recordInt(record, "logSeverityLevel"); err != nil {
		return err
	} else if ok {
		if n < 0 || n > 4 {
			return typeErrorf("'logSeverityLevel' must be in range [0, 4]; got %d", n)
		}
		if err := opts.SetLogSeverityLevel(int(n)); err != nil {
			return err
		}
	}

	if n, ok, err := recordInt(record, "logVerbosityLevel"); err != nil {
		return err
	} else if ok {
		if n < 0 {
			return typeErrorf("'logVerbosityLevel' must be non-negative; got %d", n)
		}
		if err := opts.SetLogVerbosityLevel(int(n)); err != nil {
			return err
		}
	}

	if terminate, ok, err := recordBool(record, "terminate"); err != nil {
		return err
	} else if ok && terminate {
		if err := opts.SetTerminate(); err != nil {
			return err
		}
	}

	if tag, ok, err := recordString(record, "tag"); err != nil {
		return err
	} else if ok {
		if err := opts.SetTag(tag); err != nil {
			return err
		}
	}

	if raw, ok := record["extra"]; ok {
		extra, ok := raw.(map[string]any)
		if !ok {
			return typeErrorf("'extra' must be a record")
		}
		entries := map[string]string{}
		if err := flattenConfigEntries("", extra, entries); err != nil {
			return err
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := opts.AddConfigEntry(k, entries[k]); err != nil {
				return err
			}
		}
	}

	return nil
}

// recordString reads an optional string key from an option record.
func recordString(record map[string]any, key string) (string, bool, error) {
	raw, ok := record[key]
	if !ok {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, typeErrorf("'%s' must be a string", key)
	}
	return s, true, nil
}

// recordBool reads an optional boolean key from an option record.
func recordBool(record map[string]any, key string) (bool, bool, error) {
	raw, ok := record[key]
	if !ok {
		return false, false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, false, typeErrorf("'%s' must be a boolean", key)
	}
	return b, true, nil
}

// recordInt reads an optional integer key from an option record, accepting
// any integer kind plus integral floats.
func recordInt(record map[string]any, key string) (int64, bool, error) {
	raw, ok := record[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := intValue(raw)
	if !ok {
		return 0, false, typeErrorf("'%s' must be an integer", key)
	}
	return n, true, nil
}

// intValue coerces the numeric kinds an option record may carry to int64.
func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float32:
		if float32(int64(n)) == n {
			return int64(n), true
		}
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	}
	return 0, false
}

// configValueString stringifies config entry values the way a loosely-typed
// host record carries them.
func configValueString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		if s {
			return "1", true
		}
		return "0", true
	default:
		if n, ok := intValue(v); ok {
			return fmt.Sprintf("%d", n), true
		}
	}
	return "", false
}
