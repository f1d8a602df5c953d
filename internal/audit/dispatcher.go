package audit

import "go.uber.org/zap"

type Event struct {
	UserID    *string
	SessionID *string
	Action    string
	Entity    string
	EntityID  *string
	Metadata  any
}

// Dispatcher writes audit events asynchronously so the turn path never
// waits on the audit table.
type Dispatcher struct {
	logger *Logger
	log    *zap.Logger
	queue  chan Event
}

func NewDispatcher(logger *Logger, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		log:    log,
		queue:  make(chan Event, 100),
	}

	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	for ev := range d.queue {
		if err := d.logger.Log(
			ev.UserID,
			ev.SessionID,
			ev.Action,
			ev.Entity,
			ev.EntityID,
			ev.Metadata,
		); err != nil {
			d.log.Warn("audit write failed", zap.String("action", ev.Action), zap.Error(err))
		}
	}
}

func (d *Dispatcher) Dispatch(ev Event) {
	select {
	case d.queue <- ev:
	default:
		// Queue full: drop the event, never block a turn.
		d.log.Warn("audit queue full, dropping event", zap.String("action", ev.Action))
	}
}
