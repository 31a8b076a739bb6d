//go:build ortbackend_coreml

package ort

func init() {
	registerBackend("coreml", true)
}
