package libevdi

import (
	"errors"
	"sync"
)

var (
	// ErrAlreadyRegistered is returned by a second Register without an
	// intervening Shutdown. The existing registration is left untouched.
	ErrAlreadyRegistered = errors.New("libevdi: bridge already registered")

	// ErrNotRegistered is returned when an operation needs Register first
	ErrNotRegistered = errors.New("libevdi: bridge not registered")

	// ErrUnavailable is returned by every native operation when built without cgo
	ErrUnavailable = errors.New("libevdi: not available (build with CGO enabled)")
)

var registrar struct {
	sync.Mutex
	registered bool
}

// Register installs the log formatter into libevdi and enables creation of
// event contexts, whose tables carry all seven trampolines. It must be called
// once at startup, before any node starts handling events.
func Register() error {
	registrar.Lock()
	defer registrar.Unlock()

	if registrar.registered {
		return ErrAlreadyRegistered
	}

	if err := installNativeLogger(); err != nil {
		return err
	}

	registrar.registered = true
	return nil
}

// Shutdown restores libevdi's built-in logger and the default sink. Register
// may be called again afterwards.
func Shutdown() {
	registrar.Lock()
	defer registrar.Unlock()

	if !registrar.registered {
		return
	}

	uninstallNativeLogger()
	resetLogger()
	registrar.registered = false
}

// Registered reports whether Register has been called
func Registered() bool {
	registrar.Lock()
	defer registrar.Unlock()
	return registrar.registered
}
