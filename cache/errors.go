package cache

import "errors"

// errRangeOutOfBounds is returned to GetBody callbacks when the
// requested range falls outside the body reported by GetHeaders; per
// spec.md this is a precondition violation, but backends fail the
// specific read rather than panic so the filter can reset the stream
// cleanly.
var errRangeOutOfBounds = errors.New("cache: requested range is out of bounds")
