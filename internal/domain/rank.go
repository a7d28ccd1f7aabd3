package domain

import "sort"

// SortNewestFirst returns a copy of events ordered by descending origin time.
// Events with equal timestamps keep their feed order.
func SortNewestFirst(events []SeismicEvent) []SeismicEvent {
	sorted := make([]SeismicEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAtMillis > sorted[j].OccurredAtMillis
	})
	return sorted
}

// SelectMostRecentQualifying returns the newest event satisfying pred.
// The input slice is not reordered.
func SelectMostRecentQualifying(events []SeismicEvent, pred Predicate) (SeismicEvent, bool) {
	for _, e := range SortNewestFirst(events) {
		if pred == nil || pred(e) {
			return e, true
		}
	}
	return SeismicEvent{}, false
}
