package intake

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/42wim/matterfed/bridge"
	"github.com/42wim/matterfed/federation"
	"github.com/davecgh/go-spew/spew"
	"github.com/desertbit/timer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Handler applies federation events. *federation.Receiver implements it.
type Handler interface {
	CreateRoom(in *federation.RoomCreateInput) error
	ChangeRoomMembership(in *federation.RoomChangeMembershipInput) error
	ReceiveExternalMessage(in *federation.RoomSendInternalMessageInput) (bool, error)
	ChangeRoomName(in *federation.RoomChangeNameInput) error
}

type Config struct {
	Workers int
	Queue   int
	// SlowEvent is how long one event may run before a warning is logged.
	SlowEvent time.Duration
}

// Dispatcher runs events on a fixed set of workers. All events of one
// external room go to the same worker, so they are handled in arrival order
// while different rooms proceed in parallel.
type Dispatcher struct {
	handler Handler
	queues  []chan *bridge.Event
	slow    time.Duration
	metrics *metrics
	wg      sync.WaitGroup
	once    sync.Once
}

func NewDispatcher(handler Handler, cfg Config, reg prometheus.Registerer) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	if cfg.Queue < 0 {
		cfg.Queue = 0
	}

	d := &Dispatcher{
		handler: handler,
		queues:  make([]chan *bridge.Event, cfg.Workers),
		slow:    cfg.SlowEvent,
		metrics: newMetrics(reg),
	}

	for i := range d.queues {
		d.queues[i] = make(chan *bridge.Event, cfg.Queue)
	}

	return d
}

func (d *Dispatcher) Start() {
	for i, queue := range d.queues {
		d.wg.Add(1)

		go d.worker(i, queue)
	}
}

// Dispatch queues ev on the worker owning its room. It blocks when that
// worker's queue is full.
func (d *Dispatcher) Dispatch(ev *bridge.Event) {
	d.queues[d.shard(ev.RoomID())] <- ev
}

// Run dispatches events until the channel is closed, then stops the workers
// once their queues are drained.
func (d *Dispatcher) Run(events <-chan *bridge.Event) {
	for ev := range events {
		d.Dispatch(ev)
	}

	d.Stop()
}

func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		for _, queue := range d.queues {
			close(queue)
		}
	})

	d.wg.Wait()
}

func (d *Dispatcher) shard(roomID string) int {
	h := fnv.New32a()
	h.Write([]byte(roomID)) //nolint:errcheck

	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(n int, queue <-chan *bridge.Event) {
	defer d.wg.Done()

	logger.Debugf("worker %d started", n)

	for ev := range queue {
		d.handle(ev)
	}

	logger.Debugf("worker %d stopped", n)
}

func (d *Dispatcher) handle(ev *bridge.Event) {
	if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.Tracef("handle %s", spew.Sdump(ev))
	}

	start := time.Now()
	done := d.watch(ev)

	result := resultProcessed

	var err error

	switch e := ev.Data.(type) {
	case *federation.RoomCreateInput:
		err = d.handler.CreateRoom(e)
	case *federation.RoomChangeMembershipInput:
		err = d.handler.ChangeRoomMembership(e)
	case *federation.RoomSendInternalMessageInput:
		var delivered bool
		delivered, err = d.handler.ReceiveExternalMessage(e)
		if err == nil && !delivered {
			result = resultDropped
		}
	case *federation.RoomChangeNameInput:
		err = d.handler.ChangeRoomName(e)
	default:
		logger.Warnf("ignoring unknown event %s (%T)", ev.Type, ev.Data)
		result = resultDropped
	}

	done()

	switch {
	case federation.IsConsistencyViolation(err):
		result = resultViolation
		logger.Errorf("%s event for room %s violates local state: %s", ev.Type, ev.RoomID(), err)
	case err != nil:
		result = resultFailed
		logger.Errorf("%s event for room %s failed: %s", ev.Type, ev.RoomID(), err)
	}

	d.metrics.events.WithLabelValues(ev.Type, result).Inc()
	d.metrics.duration.WithLabelValues(ev.Type).Observe(time.Since(start).Seconds())
}

// watch warns when handling ev takes longer than the slow event threshold.
// The returned func must be called when handling is done.
func (d *Dispatcher) watch(ev *bridge.Event) func() {
	if d.slow <= 0 {
		return func() {}
	}

	t := timer.NewTimer(d.slow)
	stop := make(chan struct{})

	go func() {
		select {
		case <-t.C:
			logger.Warnf("%s event for room %s is still running after %s", ev.Type, ev.RoomID(), d.slow)
		case <-stop:
		}
	}()

	return func() {
		t.Stop()
		close(stop)
	}
}
