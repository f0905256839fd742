package redis

import (
	"rapidride/internal/estimator"
	"rapidride/internal/middleware"
	"rapidride/internal/presence"
	"rapidride/internal/service"
)

// Ensure concrete types implement interfaces.
var (
	_ service.DriverLocker   = (*LockStore)(nil)
	_ presence.Registry      = (*PresenceStore)(nil)
	_ estimator.Cache        = (*EstimateCache)(nil)
	_ middleware.Limiter     = (*RateLimiter)(nil)
	_ middleware.ReplayStore = (*ReplayStore)(nil)
)
