package atlasdb

import "go.uber.org/zap"

// baseLogger is the package default, used when a Manager is constructed
// without an explicit logger. Callers embedding atlasdb in a larger
// service should pass their own *zap.Logger to NewManager instead of
// relying on this.
var baseLogger = zap.NewNop()

// SetLogger installs the package-wide default logger for managers
// constructed without one explicitly. It does not affect managers already
// constructed.
func SetLogger(l *zap.Logger) {
	if l != nil {
		baseLogger = l
	}
}
