package history

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-com/poller"
	"github.com/ahmed-com/poller/id"
)

const appendTimeout = 2 * time.Second

// Instrument returns opts with every lifecycle callback wrapped so that the
// event is appended to store before the original callback runs. The decision
// returned by the original OnError is preserved. Store failures are logged and
// never reach the poller.
func Instrument[T any](opts poller.Options[T], store Store, log *zap.Logger) poller.Options[T] {
	if log == nil {
		log = zap.NewNop()
	}
	name := opts.Name
	if name == "" {
		name = "poller"
	}
	r := &recorder{
		store:    store,
		log:      log.With(zap.String("poller", name)),
		pollerID: id.GeneratePollerID(name),
		name:     name,
		now:      time.Now,
	}
	if opts.Clock != nil {
		r.now = opts.Clock.Now
	}

	onStart, onSuccess, onError, onStop := opts.OnStart, opts.OnSuccess, opts.OnError, opts.OnStop

	opts.OnStart = func() {
		r.record(KindStarted, "", nil)
		if onStart != nil {
			onStart()
		}
	}
	opts.OnSuccess = func(result T) {
		r.record(KindSuccess, "", nil)
		if onSuccess != nil {
			onSuccess(result)
		}
	}
	opts.OnError = func(err error) poller.ErrorDecision {
		r.record(KindFailure, "", err)
		if onError != nil {
			return onError(err)
		}
		return poller.Continue
	}
	opts.OnStop = func(reason poller.StopReason) {
		r.record(KindStopped, string(reason), nil)
		if onStop != nil {
			onStop(reason)
		}
	}
	return opts
}

type recorder struct {
	store    Store
	log      *zap.Logger
	pollerID string
	name     string
	now      func() time.Time
	seq      atomic.Uint64
}

func (r *recorder) record(kind Kind, reason string, err error) {
	at := r.now()
	event := &Event{
		ID:       id.GenerateEventID(r.pollerID, at, r.seq.Add(1)),
		PollerID: r.pollerID,
		Poller:   r.name,
		Kind:     kind,
		Reason:   reason,
		At:       at,
	}
	if err != nil {
		event.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if appendErr := r.store.Append(ctx, event); appendErr != nil {
		r.log.Warn("Failed to record poller event", zap.String("kind", string(kind)), zap.Error(appendErr))
	}
}
