package videoengine

import "strings"

// ListDevices returns the capture devices CreateCapturer can open: cameras
// found by the platform drivers, then the default test pattern.
func ListDevices() []Device {
	def := DefaultTestPatternConfig()
	devices := cameraDevices()
	return append(devices, TestPatternDevice(def.Width, def.Height, def.FPS))
}

// FindDevice looks a device up by id, then by case-insensitive name. An
// empty query returns the first device.
func FindDevice(query string) (Device, bool) {
	devices := ListDevices()
	if query == "" {
		return devices[0], true
	}
	for _, d := range devices {
		if d.ID == query {
			return d, true
		}
	}
	for _, d := range devices {
		if strings.EqualFold(d.Name, query) {
			return d, true
		}
	}
	return Device{}, false
}
