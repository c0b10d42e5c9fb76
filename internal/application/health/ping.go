package health

import (
	"errors"
	"time"
)

const (
	statusConnected = "connected"
	statusError     = "error"
)

var (
	errDisconnected = errors.New("not configured")
	errUnhealthy    = errors.New("unhealthy")
)

func ping(fn func() error) DepStatus {
	start := time.Now()
	err := fn()
	if errors.Is(err, errDisconnected) {
		return DepStatus{Status: "disconnected"}
	}
	if err != nil {
		return DepStatus{Status: statusError}
	}
	ms := time.Since(start).Milliseconds()
	return DepStatus{Status: statusConnected, PingMs: &ms}
}
