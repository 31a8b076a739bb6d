//go:build ortbackend_dml

package ort

func init() {
	registerBackend("dml", true)
}
