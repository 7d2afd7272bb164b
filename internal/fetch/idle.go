package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// idleWaiter tracks in-flight network requests on a page so navigation can
// be considered complete once the connection count stays at or below a
// threshold for a quiet period (pyppeteer's "networkidle2").
type idleWaiter struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	change   chan struct{}
}

func newIdleWaiter(ctx context.Context) *idleWaiter {
	w := &idleWaiter{
		inflight: make(map[network.RequestID]struct{}),
		change:   make(chan struct{}, 1),
	}
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.add(e.RequestID)
		case *network.EventLoadingFinished:
			w.remove(e.RequestID)
		case *network.EventLoadingFailed:
			w.remove(e.RequestID)
		}
	})
	return w
}

func (w *idleWaiter) add(id network.RequestID) {
	w.mu.Lock()
	w.inflight[id] = struct{}{}
	w.mu.Unlock()
	w.notify()
}

func (w *idleWaiter) remove(id network.RequestID) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
	w.notify()
}

func (w *idleWaiter) notify() {
	select {
	case w.change <- struct{}{}:
	default:
	}
}

func (w *idleWaiter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// wait blocks until no more than maxInflight requests have been in flight
// for at least quiet, or the context (carrying the navigation deadline)
// expires.
func (w *idleWaiter) wait(quiet time.Duration, maxInflight int) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timer := time.NewTimer(quiet)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.change:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				if w.count() <= maxInflight {
					timer.Reset(quiet)
				}
			case <-timer.C:
				if w.count() <= maxInflight {
					return nil
				}
			}
		}
	})
}
