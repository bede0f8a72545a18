package credential

import "sync/atomic"

var installed atomic.Pointer[Handle]

// Install makes h the process-wide authenticated identity. Only one handle can
// be installed at a time.
func Install(h *Handle) error {
	if h == nil {
		return credentialError(ErrAuthentication, "handle is nil")
	}
	for {
		if installed.CompareAndSwap(nil, h) {
			return nil
		}
		cur := installed.Load()
		if cur == h {
			return nil
		}
		if cur != nil {
			return credentialError(ErrAlreadyInstalled, "principal "+cur.Principal())
		}
		// Released between the swap and the load.
	}
}

// Current returns the installed handle, if any.
func Current() (*Handle, bool) {
	h := installed.Load()
	return h, h != nil
}

// Release frees the process slot held by h. The handle itself stays usable.
func Release(h *Handle) {
	installed.CompareAndSwap(h, nil)
}
