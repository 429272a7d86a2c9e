package component

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	goutils "go.viam.com/utils"
)

// asyncCycle is one queued trigger payload.
type asyncCycle struct {
	t      time.Time
	period time.Duration
}

// AsyncExecutor serializes a component's read and write on a dedicated
// worker goroutine so the realtime loop never blocks on slow hardware. The
// trigger queue has depth one and is gated by an in-flight flag: a trigger
// arriving while the previous cycle still runs is dropped, not queued.
type AsyncExecutor struct {
	name     string
	logger   golog.Logger
	clk      clock.Clock
	priority int

	readFn  func(t time.Time, period time.Duration) ReturnType
	writeFn func(t time.Time, period time.Duration) ReturnType

	inFlight  atomic.Bool
	triggerCh chan asyncCycle

	readResult  atomic.Int32
	readTimeNS  atomic.Int64
	writeResult atomic.Int32
	writeTimeNS atomic.Int64

	cancelCtx  context.Context
	cancelFunc context.CancelFunc
	workers    sync.WaitGroup
	started    bool
}

// NewAsyncExecutor builds the worker for one component. writeFn is nil for
// sensors. The worker does not run until Start.
func NewAsyncExecutor(
	name string,
	readFn, writeFn func(t time.Time, period time.Duration) ReturnType,
	priority int,
	clk clock.Clock,
	logger golog.Logger,
) *AsyncExecutor {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &AsyncExecutor{
		name:       name,
		logger:     logger,
		clk:        clk,
		priority:   priority,
		readFn:     readFn,
		writeFn:    writeFn,
		triggerCh:  make(chan asyncCycle, 1),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
}

// Start spawns the worker. Thread priority is applied best-effort; when the
// platform denies it the worker runs at normal priority.
func (ae *AsyncExecutor) Start() {
	if ae.started {
		return
	}
	ae.started = true
	ae.workers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer ae.workers.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := setThreadPriority(ae.priority); err != nil {
			ae.logger.Debugw("could not apply worker thread priority",
				"component", ae.name, "priority", ae.priority, "error", err)
		}
		for {
			select {
			case <-ae.cancelCtx.Done():
				return
			case cycle := <-ae.triggerCh:
				ae.runCycle(cycle)
				ae.inFlight.Store(false)
			}
		}
	})
}

func (ae *AsyncExecutor) runCycle(cycle asyncCycle) {
	readStart := ae.clk.Now()
	retRead := ae.readFn(cycle.t, cycle.period)
	if retRead == ReturnDeactivate {
		// A deactivate request from an async read is indistinguishable from
		// an error by the time the realtime loop observes it.
		retRead = ReturnError
	}
	ae.readResult.Store(int32(retRead))
	ae.readTimeNS.Store(int64(ae.clk.Now().Sub(readStart)))
	if retRead != ReturnOK || ae.writeFn == nil {
		return
	}
	writeStart := ae.clk.Now()
	retWrite := ae.writeFn(cycle.t, cycle.period)
	ae.writeResult.Store(int32(retWrite))
	ae.writeTimeNS.Store(int64(ae.clk.Now().Sub(writeStart)))
}

// Trigger submits one (time, period) cycle without blocking. It reports
// false when the previous cycle is still in flight, in which case the
// payload is dropped.
func (ae *AsyncExecutor) Trigger(t time.Time, period time.Duration) bool {
	if !ae.inFlight.CompareAndSwap(false, true) {
		return false
	}
	select {
	case ae.triggerCh <- asyncCycle{t: t, period: period}:
		return true
	case <-ae.cancelCtx.Done():
		ae.inFlight.Store(false)
		return false
	}
}

// LastRead returns the most recently published read result and duration.
func (ae *AsyncExecutor) LastRead() (ReturnType, time.Duration) {
	return ReturnType(ae.readResult.Load()), time.Duration(ae.readTimeNS.Load())
}

// LastWrite returns the most recently published write result and duration.
func (ae *AsyncExecutor) LastWrite() (ReturnType, time.Duration) {
	return ReturnType(ae.writeResult.Load()), time.Duration(ae.writeTimeNS.Load())
}

// ResetStatus clears the published results back to OK. Called on activation
// so a stale error from a previous activation does not fail the first cycle.
func (ae *AsyncExecutor) ResetStatus() {
	ae.readResult.Store(int32(ReturnOK))
	ae.readTimeNS.Store(0)
	ae.writeResult.Store(int32(ReturnOK))
	ae.writeTimeNS.Store(0)
}

// Busy reports whether a cycle is currently in flight.
func (ae *AsyncExecutor) Busy() bool { return ae.inFlight.Load() }

// Stop asks the worker to exit and waits for it. An in-flight cycle
// completes first.
func (ae *AsyncExecutor) Stop() {
	ae.cancelFunc()
	ae.workers.Wait()
}
