package ratelimit

import "time"

// slidingWindow holds admitted request timestamps in ascending order.
// span is the longest policy window it has been evaluated under.
type slidingWindow struct {
	stamps []time.Time
	span   time.Duration
}

// observe records that the window was evaluated under a policy window d.
func (w *slidingWindow) observe(d time.Duration) {
	w.span = max(w.span, d)
}

// prune drops every timestamp strictly before cutoff.
func (w *slidingWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.stamps, w.stamps[i:])
	clear(w.stamps[n:])
	w.stamps = w.stamps[:n]
}

func (w *slidingWindow) add(now time.Time) {
	w.stamps = append(w.stamps, now)
}

func (w *slidingWindow) len() int {
	return len(w.stamps)
}

// countSince reports how many timestamps are at or after cutoff without
// modifying the window.
func (w *slidingWindow) countSince(cutoff time.Time) int {
	n := 0
	for i := len(w.stamps) - 1; i >= 0 && !w.stamps[i].Before(cutoff); i-- {
		n++
	}
	return n
}

func (w *slidingWindow) oldest() (time.Time, bool) {
	if len(w.stamps) == 0 {
		return time.Time{}, false
	}
	return w.stamps[0], true
}

func (w *slidingWindow) newest() (time.Time, bool) {
	if len(w.stamps) == 0 {
		return time.Time{}, false
	}
	return w.stamps[len(w.stamps)-1], true
}

// lockoutTable maps identifiers to the instant their lockout ends.
type lockoutTable map[string]time.Time

// active reports whether id is locked at now. The check is strict: a
// request arriving exactly at unblockAt is no longer locked.
func (t lockoutTable) active(id string, now time.Time) (time.Time, bool) {
	until, ok := t[id]
	if !ok {
		return time.Time{}, false
	}
	return until, now.Before(until)
}
