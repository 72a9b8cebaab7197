package services

import "time"

// storeNow returns the current time at the precision Postgres TIMESTAMPTZ
// keeps, so values returned on create match later reads.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
