//go:build tinygo

package bxcan

var defaultObserver Observer = NopObserver{}
