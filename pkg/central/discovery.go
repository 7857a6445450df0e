package central

import "sync"

// DiscoverySession is the bounded lifetime of one active device scan. It
// deduplicates driver scan results so each device is surfaced exactly once
// per session, already resolved to its LinkSession.
//
// At most one DiscoverySession is alive per Coordinator at a time.
type DiscoverySession struct {
	co *Coordinator

	mu    sync.Mutex
	seen  map[string]struct{}
	queue []*LinkSession

	wake chan struct{}
	out  chan *LinkSession
	done chan struct{}
	once sync.Once
}

func newDiscoverySession(co *Coordinator) *DiscoverySession {
	ds := &DiscoverySession{
		co:   co,
		seen: make(map[string]struct{}),
		wake: make(chan struct{}, 1),
		out:  make(chan *LinkSession),
		done: make(chan struct{}),
	}
	go ds.pump()
	return ds
}

// Results returns the stream of discovered devices. It is closed when the
// session ends.
func (ds *DiscoverySession) Results() <-chan *LinkSession {
	return ds.out
}

// Stop ends the session and stops the driver scan. It is idempotent; the
// session also stops on its own when the context passed to Discover is
// cancelled.
func (ds *DiscoverySession) Stop() {
	ds.once.Do(func() {
		close(ds.done)
		ds.co.endScan(ds)
	})
}

// offer surfaces a session unless its device was already seen this scan.
// Called from the driver dispatch goroutine; never blocks.
func (ds *DiscoverySession) offer(sess *LinkSession) {
	ds.mu.Lock()
	if _, dup := ds.seen[sess.ID()]; dup {
		ds.mu.Unlock()
		return
	}
	ds.seen[sess.ID()] = struct{}{}
	ds.queue = append(ds.queue, sess)
	ds.mu.Unlock()

	select {
	case ds.wake <- struct{}{}:
	default:
	}
}

// pump moves queued results to the out channel in discovery order.
func (ds *DiscoverySession) pump() {
	defer close(ds.out)

	for {
		ds.mu.Lock()
		if len(ds.queue) == 0 {
			ds.mu.Unlock()
			select {
			case <-ds.wake:
				continue
			case <-ds.done:
				return
			}
		}
		sess := ds.queue[0]
		ds.queue = ds.queue[1:]
		ds.mu.Unlock()

		select {
		case ds.out <- sess:
		case <-ds.done:
			return
		}
	}
}
