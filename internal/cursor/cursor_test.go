package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseline(t *testing.T) {
	var tr Tracker

	tr.Baseline([]uint32{3, 10, 7})
	assert.Equal(t, uint32(10), tr.Last())

	tr.Baseline(nil)
	assert.Equal(t, uint32(0), tr.Last(), "empty mailbox baselines to zero")
}

func TestCandidates(t *testing.T) {
	var tr Tracker
	tr.Baseline([]uint32{8, 9, 10})

	got := tr.Candidates([]uint32{8, 9, 10, 11, 12})
	assert.Equal(t, []uint32{11, 12}, got)

	assert.Nil(t, tr.Candidates([]uint32{8, 9, 10}), "nothing above the baseline")
	assert.Nil(t, tr.Candidates(nil))
}

func TestAdvanceMonotonic(t *testing.T) {
	var tr Tracker
	tr.Baseline([]uint32{10})

	tr.Advance(12)
	assert.Equal(t, uint32(12), tr.Last())

	// A lower identifier never moves the cursor backward.
	tr.Advance(11)
	assert.Equal(t, uint32(12), tr.Last())

	assert.Empty(t, tr.Candidates([]uint32{10, 11, 12}),
		"identifiers at or below the cursor are never candidates again")
}
