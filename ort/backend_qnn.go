//go:build ortbackend_qnn

package ort

func init() {
	registerBackend("qnn", true)
}
