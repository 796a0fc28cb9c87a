package internal

import (
	"bufio"
	"strconv"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/wangjia184/sortedset"
)

// How long a resolved correlation identifier is remembered so a
// stale duplicate response can be told apart from a packet that
// was never ours.
const resolvedWindow = 10 * time.Minute

// Queue of packets awaiting the writer task, ordered by enqueue
// sequence so packets leave in the order the control loop
// discovered them. Backed by a sorted set drained lowest
// sequence first.
type outboundQueue struct {
	mutex  sync.Mutex
	set    *sortedset.SortedSet
	seq    int64
	notify chan struct{}
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{
		set:    sortedset.New(),
		notify: make(chan struct{}, 1),
	}
}

// A queued packet together with the key it was inserted under.
type outboundItem struct {
	key    string
	packet Packet
}

func (q *outboundQueue) push(p Packet) {
	q.mutex.Lock()
	q.seq++
	key := strconv.FormatInt(q.seq, 16)
	q.set.AddOrUpdate(key, sortedset.SCORE(q.seq), outboundItem{key: key, packet: p})
	q.mutex.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *outboundQueue) pop() (Packet, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	node := q.set.PeekMin()
	if node == nil {
		return Packet{}, false
	}
	item := node.Value.(outboundItem)
	q.set.Remove(item.key)
	return item.packet, true
}

// Drops everything still queued, returning how many packets
// never left.
func (q *outboundQueue) discard() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	dropped := 0
	for {
		node := q.set.PeekMin()
		if node == nil {
			return dropped
		}
		item := node.Value.(outboundItem)
		q.set.Remove(item.key)
		dropped++
	}
}

// Runtime owns the socket and the tasks around it. Each
// connection lifecycle starts a reader, a writer and a callback
// executor, while the lifecycle goroutine itself runs the
// control loop that exclusively owns the processor state. When a
// lifecycle dies the runtime tears everything down and starts a
// fresh one, per the configured reconnect policy.
type Runtime struct {
	configuration *Configuration
	transport     Transport
	invoker       *Invoker
	logger        Logger

	// User commands, deliberately owned by the runtime and not
	// by a lifecycle: commands not consumed before a teardown
	// are picked up by the next lifecycle.
	commands chan Command

	// Correlation identifiers recently resolved, kept so a
	// duplicate response arriving after resolution is logged as
	// stale instead of unknown.
	resolved *ttlcache.Cache

	shutdown chan struct{}
	halted   chan struct{}

	mutex   sync.Mutex
	stopped bool
}

// Creates the runtime and starts its supervision loop.
func NewRuntime(configuration *Configuration, transport Transport) (*Runtime, error) {
	if err := ValidateConfiguration(configuration); err != nil {
		return nil, err
	}

	resolved := ttlcache.NewCache()
	resolved.SetTTL(resolvedWindow)

	r := &Runtime{
		configuration: configuration,
		transport:     transport,
		invoker:       NewInvoker(),
		logger:        configuration.Logger,
		commands:      make(chan Command, 1024),
		resolved:      resolved,
		shutdown:      make(chan struct{}),
		halted:        make(chan struct{}),
	}
	r.invoker.Spawn(r.supervise)
	return r, nil
}

// Submit hands a user command to the control loop. Fails only
// when the driver was shut down or gave up reconnecting.
func (r *Runtime) Submit(cmd Command) error {
	select {
	case <-r.shutdown:
		return ErrDriverShutdown
	default:
	}
	select {
	case <-r.halted:
		return ErrReconnectExhausted
	default:
	}

	select {
	case r.commands <- cmd:
		return nil
	case <-r.shutdown:
		return ErrDriverShutdown
	case <-r.halted:
		return ErrReconnectExhausted
	}
}

// Shutdown stops the driver and blocks until every task exited.
// Pending operations and subscriptions receive a connection
// closed failure.
func (r *Runtime) Shutdown() {
	r.mutex.Lock()
	if !r.stopped {
		close(r.shutdown)
		r.stopped = true
	}
	r.mutex.Unlock()
	r.invoker.Wait()
}

// Runs connection lifecycles until a clean shutdown or until the
// reconnect budget is spent. Every retry waits the configured
// backoff scaled by the attempt number.
func (r *Runtime) supervise() {
	defer close(r.halted)
	defer r.resolved.Close()

	attempt := 0
	for {
		err := r.lifecycle()
		if err == nil {
			r.logger.Info("driver stopped")
			return
		}

		attempt++
		if attempt > r.configuration.Reconnect.MaxRetries {
			r.logger.Errorf("giving up after %d attempts. %v", attempt, err)
			return
		}
		r.logger.Warnf("connection died, restarting. attempt %d. %v", attempt, err)

		select {
		case <-r.shutdown:
			return
		case <-time.After(time.Duration(attempt) * r.configuration.Reconnect.Backoff):
		}
	}
}

// One full connection lifecycle: bootstrap the socket and the
// three tasks, cruise until something ends it, then always run
// the closing sequence. Returns nil on clean shutdown, the fatal
// error otherwise.
func (r *Runtime) lifecycle() error {
	conn, err := r.transport.Dial(r.configuration.DialTimeout)
	if err != nil {
		return err
	}

	in := bufio.NewReader(conn)
	out := bufio.NewWriter(conn)

	inbound := make(chan Packet, 256)
	outbound := newOutboundQueue()
	jobs := make(chan func(), r.configuration.CallbackQueueDepth)
	deaths := make(chan error, 2)
	done := make(chan struct{})

	tasks := NewInvoker()

	// Reader task, byte stream in, packets out.
	tasks.Spawn(func() {
		for {
			p, err := ReadPacket(in)
			if err != nil {
				select {
				case deaths <- err:
				default:
				}
				return
			}
			select {
			case inbound <- p:
			case <-done:
				return
			}
		}
	})

	// Writer task, drains the outbound queue onto the socket.
	tasks.Spawn(func() {
		for {
			p, ok := outbound.pop()
			if !ok {
				select {
				case <-outbound.notify:
					continue
				case <-done:
					return
				}
			}
			if err := WritePacket(out, p); err != nil {
				select {
				case deaths <- err:
				default:
				}
				return
			}
		}
	})

	// Callback executor, user code runs here and never on the
	// protocol path.
	tasks.Spawn(func() {
		for job := range jobs {
			job()
		}
	})

	proc := NewProcessor(r.configuration.Codec, NewGenerator(), r.configuration.Credentials)
	var reason error

cruising:
	for {
		select {
		case <-r.shutdown:
			break cruising
		case err := <-deaths:
			reason = err
			break cruising
		case cmd := <-r.commands:
			var t Transition
			t, proc = proc.Submit(cmd)
			r.dispatch(t, outbound, jobs, true)
		case p := <-inbound:
			proc = r.deliver(proc, p, outbound, jobs, true)
		}
	}

	// Closing. New writes stop, whatever never left the queue is
	// dropped.
	if dropped := outbound.discard(); dropped > 0 {
		r.logger.Debugf("dropped %d packets queued for transmission", dropped)
	}
	close(done)
	if err := conn.Close(); err != nil {
		r.logger.Debugf("error closing connection. %v", err)
	}

	// Responses the server already sent are still processed so
	// nothing read from the socket is silently lost. Unconsumed
	// user commands stay queued for the next lifecycle.
drain:
	for {
		select {
		case p := <-inbound:
			proc = r.deliver(proc, p, outbound, jobs, false)
		default:
			break drain
		}
	}

	var t Transition
	t, proc = proc.Abort(reason)
	r.dispatch(t, outbound, jobs, false)

	// Let the executor finish the queue, then stop every task.
	close(jobs)
	tasks.Wait()
	return reason
}

// Routes the effects of one processor step: packets to the
// writer queue while the lifecycle still writes, completions to
// the callback executor, resolved identifiers to the stale
// detection cache.
func (r *Runtime) dispatch(t Transition, outbound *outboundQueue, jobs chan func(), writable bool) {
	for _, id := range t.Resolved {
		r.resolved.Set(string(id), true)
	}
	for _, p := range t.Packets {
		if !writable {
			r.logger.Debugf("discarding %s, connection is closing", p.Name())
			continue
		}
		outbound.push(p)
	}
	for _, completion := range t.Completions {
		if completion.Callback == nil {
			continue
		}
		callback, outcome := completion.Callback, completion.Outcome
		jobs <- func() {
			callback(outcome)
		}
	}
}

func (r *Runtime) deliver(proc Processor, p Packet, outbound *outboundQueue, jobs chan func(), writable bool) Processor {
	t, next, ok := proc.Deliver(p)
	if !ok {
		if _, stale := r.resolved.Get(string(p.Correlation)); stale {
			r.logger.Debugf("discarding stale duplicate %s for %s", p.Name(), p.Correlation)
		} else {
			r.logger.Debugf("ignoring unmatched %s for %s", p.Name(), p.Correlation)
		}
		return proc
	}
	r.dispatch(t, outbound, jobs, writable)
	return next
}
