// Package cursor tracks the high-water mark of processed message
// identifiers within one monitoring run. The mark is not persisted:
// every start re-baselines to the current mailbox maximum, so mail that
// arrived while the monitor was stopped is never caught up.
package cursor

// Tracker holds the largest identifier already handed off. It is owned
// by the single poll loop and is not safe for concurrent use.
type Tracker struct {
	last uint32
}

// Baseline sets the cursor to the maximum of the given identifiers, or
// 0 when the mailbox is empty. Messages at or below the baseline are
// never processed.
func (t *Tracker) Baseline(uids []uint32) {
	t.last = 0
	for _, uid := range uids {
		if uid > t.last {
			t.last = uid
		}
	}
}

// Candidates returns the identifiers strictly greater than the cursor,
// in ascending order. The input is expected to be ascending, as
// returned by a mail-store session.
func (t *Tracker) Candidates(uids []uint32) []uint32 {
	var out []uint32
	for _, uid := range uids {
		if uid > t.last {
			out = append(out, uid)
		}
	}
	return out
}

// Advance raises the cursor to uid if it is greater. Call only after
// the message has been successfully handed off, so a failed hand-off
// leaves the identifier in the next poll's candidate set.
func (t *Tracker) Advance(uid uint32) {
	if uid > t.last {
		t.last = uid
	}
}

// Last returns the current high-water mark.
func (t *Tracker) Last() uint32 {
	return t.last
}
