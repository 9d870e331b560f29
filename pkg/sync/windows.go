package sync

// untilStack holds pending window upper bounds, newest on top. The bottom of
// the stack is always the largest bound still owed; when the stack is full a
// push evicts the bottom, which lowers the overall crawl ceiling to the next
// remaining bound.
type untilStack struct {
	items   []int64
	bound   int
	evicted int
}

func newUntilStack(until0 int64, bound int) *untilStack {
	return &untilStack{items: []int64{until0}, bound: bound}
}

func (s *untilStack) push(until int64) {
	if len(s.items) >= s.bound {
		s.items = s.items[1:]
		s.evicted++
	}
	s.items = append(s.items, until)
}

func (s *untilStack) pop() (until int64, ok bool) {
	if len(s.items) == 0 {
		return 0, false
	}
	until = s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return until, true
}

func (s *untilStack) len() int { return len(s.items) }
