//go:build ortbackend_webgpu

package ort

func init() {
	registerBackend("webgpu", true)
}
