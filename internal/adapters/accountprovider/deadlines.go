package accountprovider

import (
	"context"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/Amund211/mojangdirectory/internal/domain"
)

// Enforces separate bounds on obtaining a connection and on reading the response.
//
// The connect timer runs until the transport hands out a connection (or a response
// arrives), after which the read timer runs until the body has been read.
// When a timer expires the request context is canceled and the phase is recorded.
type phaseDeadlines struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	cancel         context.CancelFunc

	mutex   sync.Mutex
	phase   domain.TimeoutPhase
	expired domain.TimeoutPhase
	timer   *time.Timer
}

func withPhaseDeadlines(ctx context.Context, connectTimeout, readTimeout time.Duration) (context.Context, *phaseDeadlines, func()) {
	ctx, cancel := context.WithCancel(ctx)

	d := &phaseDeadlines{
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		cancel:         cancel,
		phase:          domain.TimeoutPhaseConnect,
	}

	d.mutex.Lock()
	d.timer = time.AfterFunc(connectTimeout, func() {
		d.expire(domain.TimeoutPhaseConnect)
	})
	d.mutex.Unlock()

	ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) {
			d.connected()
		},
	})

	stop := func() {
		d.mutex.Lock()
		d.timer.Stop()
		d.mutex.Unlock()
		cancel()
	}

	return ctx, d, stop
}

// Switch from the connect phase to the read phase. Safe to call more than once.
func (d *phaseDeadlines) connected() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.expired != domain.TimeoutPhaseNone || d.phase != domain.TimeoutPhaseConnect {
		return
	}

	d.timer.Stop()
	d.phase = domain.TimeoutPhaseRead
	d.timer = time.AfterFunc(d.readTimeout, func() {
		d.expire(domain.TimeoutPhaseRead)
	})
}

func (d *phaseDeadlines) expire(phase domain.TimeoutPhase) {
	d.mutex.Lock()
	// A timer from a previous phase may fire after the phase switch
	if d.phase != phase || d.expired != domain.TimeoutPhaseNone {
		d.mutex.Unlock()
		return
	}
	d.expired = phase
	d.mutex.Unlock()

	d.cancel()
}

func (d *phaseDeadlines) expiredPhase() domain.TimeoutPhase {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.expired
}

func (d *phaseDeadlines) transportError(err error) *domain.TransportError {
	return &domain.TransportError{
		Phase:          d.expiredPhase(),
		ConnectTimeout: d.connectTimeout,
		ReadTimeout:    d.readTimeout,
		Err:            err,
	}
}
