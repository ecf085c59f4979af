//go:build !linux

package kernel

// NewHost is only available on Linux.
func NewHost(opts ...HostOption) (Kernel, error) {
	return nil, ErrNoHost
}
