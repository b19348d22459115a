// Package generatedid implements the codec for the time-ordered generated
// IDs assigned by the mail store.
//
// Generated ID structure (64 bits):
//
//	┌─────────┬─────────────────────┬────────────┬──────────────┐
//	│ 1 bit   │      41 bits        │  10 bits   │   12 bits    │
//	│ sign(0) │ timestamp (ms)      │ server_id  │  sequence    │
//	└─────────┴─────────────────────┴────────────┴──────────────┘
//
// - 41 bits: milliseconds since custom epoch (~69 years)
// - 10 bits: server/node ID of the minting store node (0-1023)
// - 12 bits: sequence number (0-4095 per ms)
//
// Ordering is time-monotone: numeric comparison of two IDs compares their
// creation instants. IDs are minted by the remote mail store; this side only
// translates wall-clock cutoffs into range-query bounds and back.
package generatedid

import (
	"math"
	"time"
)

const (
	// Custom epoch: 2024-01-01 00:00:00 UTC
	epoch int64 = 1704067200000

	// Bit lengths
	serverIDBits = 10
	sequenceBits = 12

	// Max values
	maxServerID = (1 << serverIDBits) - 1 // 1023
	maxSequence = (1 << sequenceBits) - 1 // 4095

	// Bit shifts
	timestampShift = serverIDBits + sequenceBits // 22
	serverIDShift  = sequenceBits                // 12
)

// MaxID is the largest representable generated ID. Range walks that start
// "from now" descend from MaxID.
const MaxID int64 = math.MaxInt64

// MinID is the smallest valid generated ID.
const MinID int64 = 0

// IDToTimestamp extracts the creation instant embedded in an ID, as epoch-ms.
func IDToTimestamp(id int64) int64 {
	return (id >> timestampShift) + epoch
}

// IDToTime extracts the creation instant embedded in an ID.
func IDToTime(id int64) time.Time {
	return time.UnixMilli(IDToTimestamp(id))
}

// TimestampToID returns the smallest generated ID whose embedded time is >= ts
// (epoch-ms). Server ID and sequence bits are zero, so every real ID minted at
// or after ts compares >= the result. Inverse of IDToTimestamp for any input
// at millisecond granularity.
func TimestampToID(ts int64) int64 {
	return (ts - epoch) << timestampShift
}

// TimeToID is TimestampToID over a time.Time.
func TimeToID(t time.Time) int64 {
	return TimestampToID(t.UnixMilli())
}

// StartOfDayShifted returns the UTC midnight timestamp |days| days away from
// now. Negative days shift into the past.
func StartOfDayShifted(now time.Time, days int) time.Time {
	u := now.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, days)
}
