package core

import (
	"container/list"
	"sync"
	"time"

	"github.com/dkeye/Converse/internal/domain"
)

// WaitQueue holds waiting tickets in arrival order.
// A connection holds at most one ticket.
type WaitQueue struct {
	mu    sync.Mutex
	order *list.List
	index map[domain.ConnID]*list.Element
}

func NewWaitQueue() *WaitQueue {
	return &WaitQueue{
		order: list.New(),
		index: make(map[domain.ConnID]*list.Element),
	}
}

// Push appends a ticket. It reports false if the connection already waits.
func (q *WaitQueue) Push(t domain.WaitingTicket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.index[t.Conn]; ok {
		return false
	}
	q.index[t.Conn] = q.order.PushBack(t)
	return true
}

// Pop removes and returns the oldest ticket.
func (q *WaitQueue) Pop() (domain.WaitingTicket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.order.Front()
	if front == nil {
		return domain.WaitingTicket{}, false
	}
	t := q.order.Remove(front).(domain.WaitingTicket)
	delete(q.index, t.Conn)
	return t, true
}

func (q *WaitQueue) Remove(c domain.ConnID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	el, ok := q.index[c]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, c)
	return true
}

func (q *WaitQueue) Contains(c domain.ConnID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[c]
	return ok
}

func (q *WaitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// RemoveOlderThan drops every ticket enqueued before cutoff.
func (q *WaitQueue) RemoveOlderThan(cutoff time.Time) []domain.WaitingTicket {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.WaitingTicket
	for el := q.order.Front(); el != nil; {
		t := el.Value.(domain.WaitingTicket)
		if !t.EnqueuedAt.Before(cutoff) {
			// arrival order means everything after is newer
			break
		}
		next := el.Next()
		q.order.Remove(el)
		delete(q.index, t.Conn)
		out = append(out, t)
		el = next
	}
	return out
}
