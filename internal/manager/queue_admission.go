package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred. With admission disabled it never blocks.
func (m *Manager) beginGeneration(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	if m.queueCh == nil {
		return func() {}, nil
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case m.queueCh <- struct{}{}:
		// reserved queue slot
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{reason: "queue full"}
	}

	// Wait to acquire the single in-flight slot
	acquired := false
	defer func() {
		if !acquired {
			<-m.queueCh
		}
	}()
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case m.genCh <- struct{}{}:
		acquired = true
		return func() { <-m.genCh; <-m.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{reason: "pipeline busy"}
	}
}
