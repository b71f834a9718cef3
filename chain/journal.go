package chain

// journal is an append-only list of undo closures. A snapshot is just the current
// length; reverting runs the closures recorded after it in reverse order.
// It is only touched by the goroutine holding the transaction lock.
type journal struct {
	entries []func()
}

func (j *journal) append(undo func()) {
	j.entries = append(j.entries, undo)
}

func (j *journal) snapshot() int {
	return len(j.entries)
}

func (j *journal) revertTo(id int) {
	for i := len(j.entries) - 1; i >= id; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:id]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}
