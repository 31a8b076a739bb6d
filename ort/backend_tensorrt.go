//go:build ortbackend_tensorrt

package ort

func init() {
	registerBackend("tensorrt", false)
}
