package kernel

import "errors"

// ErrNoHost is returned by NewHost on platforms without a host kernel
// backend.
var ErrNoHost = errors.New("host kernel not supported on this platform")

// HostOption configures the host kernel.
type HostOption func(*hostConfig)

type hostConfig struct {
	timerFreq   uint64
	minPrio     int
	maxPrio     int
	defaultPrio int
}

func defaultHostConfig() hostConfig {
	return hostConfig{timerFreq: 100, minPrio: 1, maxPrio: 31, defaultPrio: 8}
}

// WithHostTimerFreq sets the tick rate reported by Ticks.
func WithHostTimerFreq(hz uint64) HostOption {
	return func(c *hostConfig) {
		if hz > 0 {
			c.timerFreq = hz
		}
	}
}

// WithHostPriorities sets the priority range mapped onto nice values. The
// default may sit on either end of the range.
func WithHostPriorities(min, max, def int) HostOption {
	return func(c *hostConfig) {
		if min < max && min <= def && def <= max {
			c.minPrio, c.maxPrio, c.defaultPrio = min, max, def
		}
	}
}

// niceFor maps a priority onto a nice value. The default priority is nice
// 0, the minimum is 19 and the maximum is -20. A default on an end of the
// range still maps to 0.
func (c hostConfig) niceFor(prio int) int {
	switch {
	case prio == c.defaultPrio:
		return 0
	case prio <= c.minPrio:
		return 19
	case prio >= c.maxPrio:
		return -20
	case prio < c.defaultPrio:
		return (c.defaultPrio - prio) * 19 / (c.defaultPrio - c.minPrio)
	default:
		return -(prio - c.defaultPrio) * 20 / (c.maxPrio - c.defaultPrio)
	}
}
