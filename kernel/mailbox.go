package kernel

// waitQueue holds tasks blocked on a queue, in arrival order.
type waitQueue struct {
	tasks []*Task
}

func (w *waitQueue) add(t *Task) {
	w.tasks = append(w.tasks, t)
}

func (w *waitQueue) remove(t *Task) {
	for i, x := range w.tasks {
		if x == t {
			w.tasks = append(w.tasks[:i], w.tasks[i+1:]...)
			return
		}
	}
}

func (w *waitQueue) pop() *Task {
	if len(w.tasks) == 0 {
		return nil
	}
	t := w.tasks[0]
	w.tasks = w.tasks[1:]
	return t
}

// Queue is a bounded FIFO of fixed-size messages. Messages are copied in on Send and
// copied out on Receive; the storage is allocated once at creation and never grows.
type Queue struct {
	k        *Kernel
	size     int
	capacity int
	buf      []byte
	head     int
	count    int

	senders   waitQueue
	receivers waitQueue
}

// NewQueue creates a queue of capacity slots of messageSize bytes.
func (k *Kernel) NewQueue(capacity, messageSize int) (*Queue, error) {
	if capacity <= 0 || messageSize <= 0 {
		return nil, ErrInvalidQueue
	}
	return &Queue{
		k:        k,
		size:     messageSize,
		capacity: capacity,
		buf:      make([]byte, capacity*messageSize),
	}, nil
}

func (q *Queue) Capacity() int    { return q.capacity }
func (q *Queue) MessageSize() int { return q.size }

func (q *Queue) Len() int {
	q.k.mu.Lock()
	defer q.k.mu.Unlock()
	return q.count
}

func (q *Queue) slot(i int) []byte {
	i %= q.capacity
	return q.buf[i*q.size : (i+1)*q.size]
}

// blocking reports whether t may wait: it must be the running task and timeout non-zero.
// A nil task is a caller outside any task and never waits.
func (q *Queue) blocking(t *Task, timeout uint64) bool {
	return timeout > 0 && t != nil && q.k.current == t
}

// Send copies msg into the queue, truncated or zero padded to the message size.
// When the queue is full it waits up to timeout ticks for room and reports false
// if there still is none; the message is then dropped.
func (q *Queue) Send(t *Task, msg []byte, timeout uint64) bool {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	deadline := k.after(timeout)
	for {
		if q.count < q.capacity {
			s := q.slot(q.head + q.count)
			n := copy(s, msg)
			clear(s[n:])
			q.count++
			q.wakeLocked(&q.receivers)
			return true
		}
		if !q.blocking(t, timeout) || k.tick >= deadline {
			return false
		}
		if !t.block(&q.senders, deadline) && q.count >= q.capacity {
			return false
		}
	}
}

// Receive copies the oldest message into dst and reports whether there was one.
// With timeout 0 it polls; otherwise it waits up to timeout ticks for a message.
func (q *Queue) Receive(t *Task, dst []byte, timeout uint64) bool {
	k := q.k
	k.mu.Lock()
	defer k.mu.Unlock()
	deadline := k.after(timeout)
	for {
		if q.count > 0 {
			copy(dst, q.slot(q.head))
			q.head = (q.head + 1) % q.capacity
			q.count--
			q.wakeLocked(&q.senders)
			return true
		}
		if !q.blocking(t, timeout) || k.tick >= deadline {
			return false
		}
		if !t.block(&q.receivers, deadline) && q.count == 0 {
			return false
		}
	}
}

func (q *Queue) wakeLocked(wq *waitQueue) {
	t := wq.pop()
	if t == nil {
		return
	}
	t.waiting = nil
	q.k.unsleepLocked(t)
	q.k.readyLocked(t)
	q.k.scheduleLocked()
}
