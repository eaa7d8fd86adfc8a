//go:build !unix && !windows

package lock

// DefaultAdvisoryLocker returns NopLocker: this platform has no advisory
// locks, so every guard degrades to the in-process mutex.
func DefaultAdvisoryLocker() AdvisoryLocker {
	return NopLocker{}
}
