//go:build !linux || nodevices

package videoengine

// Camera capture needs the mediadevices drivers, which are only wired on
// Linux.
func cameraDevices() []Device { return nil }
