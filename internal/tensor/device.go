package tensor

import "sync"

// Device represents the location of a tensor's storage.
//
// Kernel dispatch against an accelerator device is serialized by the device's
// own queue lock; callers see every operation as an opaque synchronous call.
// The host device needs no queue, its kernels run inline on the calling
// goroutine.
type Device int

// Supported devices.
const (
	Host Device = iota
	Accelerator
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case Host:
		return "Host"
	case Accelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// acceleratorQueue serializes work submitted to the shared accelerator.
// Only one kernel is in flight at a time; submit blocks until completion.
var acceleratorQueue sync.Mutex

// dispatch runs a kernel for the given device. Host kernels run inline;
// accelerator kernels are serialized through the shared queue.
func (d Device) dispatch(kernel func()) {
	if d == Accelerator {
		acceleratorQueue.Lock()
		defer acceleratorQueue.Unlock()
	}
	kernel()
}
