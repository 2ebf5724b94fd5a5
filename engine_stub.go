//go:build !(darwin || linux) || novie

package videoengine

// NativeEngine is unavailable on this platform or build.
type NativeEngine struct {
	Engine
}

// NewNativeEngine always fails: libmedia_vie is only bound on darwin and
// linux without the novie tag.
func NewNativeEngine(libPath string) (*NativeEngine, error) {
	return nil, ErrNotSupported
}

// IsNativeEngineAvailable reports false.
func IsNativeEngineAvailable(libPath string) bool { return false }

// Close is a no-op.
func (e *NativeEngine) Close() error { return nil }
