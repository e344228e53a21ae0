package activity

import "time"

// RotationOrder lists the users of heartbeats sorted by updated_at, keeping first occurrences.
func RotationOrder(heartbeats []Heartbeat) []int {
	seen := make(map[int]bool, len(heartbeats))
	ids := make([]int, 0, len(heartbeats))
	for _, hb := range heartbeats {
		if !seen[hb.UserID] {
			seen[hb.UserID] = true
			ids = append(ids, hb.UserID)
		}
	}
	return ids
}

// ActiveIndex is the slot holding the turn at now when n participants rotate every period,
// or -1 when nobody can.
func ActiveIndex(now time.Time, period time.Duration, n int) int {
	ms := period.Milliseconds()
	if n <= 0 || ms <= 0 {
		return -1
	}
	return int((now.UnixMilli() / ms) % int64(n))
}
