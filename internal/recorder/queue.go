package recorder

// outputQueue orders worker outputs by sequence number. It implements
// heap.Interface.
type outputQueue []workerOutput

func (q outputQueue) Len() int           { return len(q) }
func (q outputQueue) Less(i, j int) bool { return q[i].seq < q[j].seq }
func (q outputQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *outputQueue) Push(x any) {
	*q = append(*q, x.(workerOutput))
}

func (q *outputQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
