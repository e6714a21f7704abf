//go:build cuda

package cuda

import (
	"runtime/cgo"
	"unsafe"
)

import "C"

// sluiceHostFuncBridge is the cudaLaunchHostFunc trampoline: the user
// data is a cgo handle to a Go closure, consumed exactly once.
//
//export sluiceHostFuncBridge
func sluiceHostFuncBridge(p unsafe.Pointer) {
	h := cgo.Handle(uintptr(p))
	h.Value().(func())()
	h.Delete()
}
