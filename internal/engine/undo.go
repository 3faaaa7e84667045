package engine

// undoLog records the inverse of every side effect of one execution attempt.
type undoLog struct {
	steps []func()
}

func (u *undoLog) push(step func()) {
	u.steps = append(u.steps, step)
}

func (u *undoLog) rollback() {
	for i := len(u.steps) - 1; i >= 0; i-- {
		u.steps[i]()
	}
	u.steps = nil
}

func (u *undoLog) changeCredit(b *Broker, delta int64) {
	b.IncreaseCreditBy(delta)
	u.push(func() { b.DecreaseCreditBy(delta) })
}

// touch saves the state and book placement of a resting order before it is mutated.
func (u *undoLog) touch(book *OrderBook, o *Order) {
	before := *o
	u.push(func() {
		book.detach(o)
		*o = before
		book.Restore(o)
	})
}
