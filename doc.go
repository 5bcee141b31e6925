// Package poller runs an asynchronous task repeatedly on a self-rescheduling
// timer.
//
// A Poller fires its task immediately (or after one interval), waits for the
// outcome, and arms the next firing. Failures grow the delay exponentially when
// backoff is enabled and count against an optional retry budget. An optional
// activity window, given as fixed instants or "HH:mm" times of day, confines
// polling to a period; the poller stops on its own when the window closes.
//
// Quick start:
//
//	p, err := poller.Create(fetchStatus, &poller.Override[Status]{
//	    Interval:  poller.Ptr(10 * time.Second),
//	    OnSuccess: func(s Status) { render(s) },
//	})
//	if err != nil {
//	    return err
//	}
//	if err := p.Start(); err != nil {
//	    return err // only an inverted activity window fails here
//	}
//	defer p.Stop()
//
// Task failures never escape the poller: they are reported through OnError,
// whose ErrorDecision may force an immediate stop, and eventually OnStop.
package poller
