//go:build ortbackend_cuda

package ort

func init() {
	registerBackend("cuda", false)
}
