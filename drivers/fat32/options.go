package fat32

import (
	"io"
	"time"

	"github.com/sdfat/sdfat"
	log "github.com/sirupsen/logrus"
)

// Option configures a [Driver].
type Option func(driver *Driver)

// WithLogger sends the driver's trace output to `logger`. By default nothing
// is logged.
func WithLogger(logger log.FieldLogger) Option {
	return func(driver *Driver) {
		driver.log = logger
	}
}

// WithClock sets the function used to timestamp directory entries.
func WithClock(clock sdfat.Clock) Option {
	return func(driver *Driver) {
		driver.clock = clock
	}
}

func discardLogger() log.FieldLogger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func defaultClock() time.Time {
	return time.Now()
}
