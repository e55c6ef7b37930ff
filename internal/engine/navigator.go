package engine

// Navigator tracks the current position in a fixed, ordered question list.
type Navigator struct {
	index  int
	total  int
	frozen bool
}

// NewNavigator positions a navigator on the first of total questions.
func NewNavigator(total int) *Navigator {
	return &Navigator{total: total}
}

// Next moves forward one question. It is a no-op on the last question and
// reports whether the index changed.
func (n *Navigator) Next() bool {
	if n.frozen || n.index >= n.total-1 {
		return false
	}
	n.index++
	return true
}

// Previous moves back one question. It is a no-op on the first question.
func (n *Navigator) Previous() bool {
	if n.frozen || n.index <= 0 {
		return false
	}
	n.index--
	return true
}

// Index returns the zero-based current position.
func (n *Navigator) Index() int { return n.index }

// Total returns the number of questions.
func (n *Navigator) Total() int { return n.total }

// AtLast reports whether the current question is the final one.
func (n *Navigator) AtLast() bool { return n.index == n.total-1 }

// Progress returns (index+1)/total for display.
func (n *Navigator) Progress() float64 {
	if n.total == 0 {
		return 0
	}
	return float64(n.index+1) / float64(n.total)
}

// Freeze pins the index.
func (n *Navigator) Freeze() { n.frozen = true }
