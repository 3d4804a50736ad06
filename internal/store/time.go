package store

import "time"

// nowTstamp takes the current wall-clock second as a 32-bit tstamp, as
// defined by the on-disk record format.
func nowTstamp() uint32 {
	return uint32(time.Now().Unix())
}
