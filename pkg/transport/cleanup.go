package transport

import (
	"io"

	"github.com/dd0wney/cluso-relay/pkg/logging"
)

// resourceCleanup closes registered sockets in reverse order unless cleared.
// Setup code defers cleanup() and calls clear() once everything is open.
type resourceCleanup struct {
	resources []namedCloser
	logger    logging.Logger
}

type namedCloser struct {
	closer io.Closer
	name   string
}

func newResourceCleanup(logger logging.Logger) *resourceCleanup {
	return &resourceCleanup{
		resources: make([]namedCloser, 0, 4),
		logger:    logger,
	}
}

func (rc *resourceCleanup) add(closer io.Closer, name string) {
	rc.resources = append(rc.resources, namedCloser{closer: closer, name: name})
}

// cleanup closes every registered resource, LIFO, and is safe to call repeatedly
func (rc *resourceCleanup) cleanup() {
	rc.closeAll()
}

// clear forgets registered resources without closing them
func (rc *resourceCleanup) clear() {
	rc.resources = rc.resources[:0]
}

// closeAll closes every resource and returns the first error
func (rc *resourceCleanup) closeAll() error {
	var firstErr error
	for i := len(rc.resources) - 1; i >= 0; i-- {
		r := rc.resources[i]
		if r.closer == nil {
			continue
		}
		if err := r.closer.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			rc.logger.Warn("failed to close socket", logging.String("socket", r.name), logging.Error(err))
		}
	}
	rc.resources = rc.resources[:0]
	return firstErr
}
