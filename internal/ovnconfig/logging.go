package ovnconfig

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ovnlocal/lflow/internal/reflog"
)

// NewLogger builds the base structured logger for the controller binary.
// level is one of logrus's level names ("debug", "info", "warn", ...);
// an unrecognized value falls back to info, matching logrus.ParseLevel's
// own error being non-fatal here — a bad level name should not prevent the
// controller from starting.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// NewRateLimited wraps log with the rate-limit window/burst from c, for the
// "never fatal, always logged, rate-limited per error class" policy of
// spec.md §7.
func (c *Config) NewRateLimited(log *logrus.Logger) *reflog.RateLimited {
	return reflog.New(log, c.RateLimitWindow, c.RateLimitBurst)
}
