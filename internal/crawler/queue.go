package crawler

// queue is a BFS frontier with canonical-URL deduplication.
type queue struct {
	items []string
	seen  map[string]bool
	idx   int
}

func newQueue() *queue {
	return &queue{seen: make(map[string]bool)}
}

// add enqueues a URL not seen before and reports whether it was new.
func (q *queue) add(url string) bool {
	if q.seen[url] {
		return false
	}
	q.seen[url] = true
	q.items = append(q.items, url)
	return true
}

func (q *queue) hasNext() bool {
	return q.idx < len(q.items)
}

func (q *queue) next() string {
	url := q.items[q.idx]
	q.idx++
	return url
}

func (q *queue) all() []string {
	return q.items
}
