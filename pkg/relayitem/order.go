package relayitem

// OrderKey is the (timestamp, stamp) pair that orders versions of one key.
type OrderKey struct {
	Timestamp int64
	Stamp     int64
}

// Order returns the ordering key of the item
func (it *Item) Order() OrderKey {
	return OrderKey{Timestamp: it.Timestamp, Stamp: it.Stamp}
}

// Compare returns -1, 0 or +1 as a orders before, equal to, or after b.
func (a OrderKey) Compare(b OrderKey) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	case a.Stamp < b.Stamp:
		return -1
	case a.Stamp > b.Stamp:
		return 1
	default:
		return 0
	}
}

// After reports whether a is strictly newer than b
func (a OrderKey) After(b OrderKey) bool {
	return a.Compare(b) > 0
}

// Newer reports whether a is strictly newer than b. A nil b is older than anything.
func Newer(a, b *Item) bool {
	if b == nil {
		return a != nil
	}
	if a == nil {
		return false
	}
	return a.Order().After(b.Order())
}

// Accepts reports whether a non-forced write with the given timestamp would replace
// existing. Only the writer's timestamp participates: the stamp of the candidate is not
// known until the store assigns it, and a tie is treated as a duplicate.
func Accepts(existing *Item, timestamp int64) bool {
	return existing == nil || timestamp > existing.Timestamp
}
