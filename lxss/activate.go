package lxss

import (
	"runtime"
	"sync"
)

// Activator produces a live Session. It runs on the apartment thread and
// performs whatever one-time environment and security-context setup the
// session object requires; the returned session is bound to that thread
// for mutating calls.
type Activator func() (Session, error)

var (
	activatorMu     sync.RWMutex
	nativeActivator Activator
)

// RegisterActivator installs the platform-native session activator. The
// COM marshaling layer registers itself here at init time; tests install
// fakes through the client options instead.
func RegisterActivator(a Activator) {
	activatorMu.Lock()
	defer activatorMu.Unlock()
	nativeActivator = a
}

// Activate runs the registered native activator. Hosts without a control
// service report ErrUnsupportedPlatform; windows hosts without a
// registered marshaling layer report the class-not-registered status the
// service returns when its session interface is unavailable.
func Activate() (Session, error) {
	if runtime.GOOS != "windows" {
		return nil, ErrUnsupportedPlatform
	}
	activatorMu.RLock()
	activate := nativeActivator
	activatorMu.RUnlock()
	if activate == nil {
		return nil, NewStatusError(CodeClassNotRegistered, "session class not registered")
	}
	return activate()
}
