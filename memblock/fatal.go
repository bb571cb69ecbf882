package memblock

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Debug gates the programming-error assertions described in spec.md §7.2
// (e.g. a non-FREE chunk handed to huge EnsureHeaderType, misaligned run
// bitmap geometry). In debug builds assertions fire; in release builds the
// check is skipped and behavior is undefined, matching the original's
// #ifdef DEBUG / ASSERT macros. Defaults to false so a production build
// pays nothing for these checks.
var Debug = false

// assertf panics with a formatted message when cond is false and Debug is
// enabled. It is a no-op otherwise.
func assertf(cond bool, format string, args ...interface{}) {
	if Debug && !cond {
		panic(fmt.Sprintf("pmemblock: assertion failed: "+format, args...))
	}
}

// fatalCorruption reports a corruption condition detected while decoding
// persistent metadata (spec.md §7.1) and then panics, this subsystem's
// abort-equivalent terminal primitive. Corruption detection is mandatory
// at every decoding step; there is no recoverable path once metadata has
// failed to match an expected shape, since the caller has already
// committed to a particular block identity. Panicking rather than calling
// os.Exit lets a host process (or a test) install its own top-level
// recovery/crash-reporting policy instead of having one imposed here.
func fatalCorruption(reason string, fields logrus.Fields) {
	logrus.WithFields(fields).WithField("reason", reason).Error("pmemblock: metadata corruption")
	panic("pmemblock: metadata corruption: " + reason)
}
