package entitlement

import "sync"

// dispatcher runs tasks one at a time, in submission order, on its own
// goroutine. The queue is unbounded so submitters never block and no
// notification is dropped.
type dispatcher struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

// submit queues task. It reports false once the dispatcher is closed.
func (d *dispatcher) submit(task func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.tasks = append(d.tasks, task)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) loop() {
	defer close(d.stopped)

	for {
		d.mu.Lock()
		tasks := d.tasks
		d.tasks = nil
		closed := d.closed
		d.mu.Unlock()

		for _, task := range tasks {
			task()
		}

		if len(tasks) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

// flush blocks until every task submitted before the call has run.
func (d *dispatcher) flush() {
	done := make(chan struct{})
	if !d.submit(func() { close(done) }) {
		<-d.stopped
		return
	}
	<-done
}

// close drains pending tasks and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.stopped
}
