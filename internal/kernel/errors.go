package kernel

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("subsystem", "kernel")

// fatalf halts the kernel with a diagnostic on an internal invariant
// violation: unlocking a mutex that isn't locked, an invalid
// task-state transition, and the like are bugs in the kernel itself,
// never a condition a syscall caller can provoke, so they panic rather
// than return an error code.
func fatalf(format string, args ...interface{}) {
	err := errors.Errorf(format, args...)
	log.WithError(err).Error("kernel invariant violated")
	panic(err)
}
