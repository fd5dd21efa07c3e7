package lockmgr

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
)

// The lock states never block. The helpers below layer waiting on top of ILockManager
// by polling with exponential backoff. If the context ends while waiting, the pending
// registration is withdrawn and the context error is returned.

var defaultWaitSetting = WaitSetting{
	MinInterval: 10 * time.Millisecond,
	MaxInterval: 200 * time.Millisecond,
}

// WaitSetting configures the polling backoff.
type WaitSetting struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

type WaitOption func(setting *WaitSetting)

// WithMinRetryInterval sets the first backoff interval
func WithMinRetryInterval(t time.Duration) WaitOption {
	return func(setting *WaitSetting) {
		setting.MinInterval = t
	}
}

// WithMaxRetryInterval caps the backoff interval
func WithMaxRetryInterval(t time.Duration) WaitOption {
	return func(setting *WaitSetting) {
		setting.MaxInterval = t
	}
}

func newWaitSetting(options []WaitOption) WaitSetting {
	setting := defaultWaitSetting
	for _, option := range options {
		option(&setting)
	}
	if setting.MinInterval <= 0 {
		setting.MinInterval = defaultWaitSetting.MinInterval
	}
	if setting.MaxInterval < setting.MinInterval {
		setting.MaxInterval = setting.MinInterval
	}
	return setting
}

// LockExclusive blocks until owner holds the exclusive lock of resource or ctx ends.
func LockExclusive(ctx context.Context, lm ILockManager, resource string, owner LockOwner, options ...WaitOption) error {
	err := poll(ctx, newWaitSetting(options), func() (bool, error) {
		return lm.AcquireExclusive(resource, owner)
	})
	if err != nil && ctx.Err() != nil {
		if _, cErr := lm.CancelExclusive(resource, owner); cErr != nil {
			log.Warningf("cancel pending %s on %s failed: %v", owner, resource, cErr)
		}
	}
	return err
}

// LockRead blocks until owner holds a read lock of resource or ctx ends.
// Read requests are not queued, so there is nothing to withdraw on cancellation.
func LockRead(ctx context.Context, lm ILockManager, resource string, owner LockOwner, options ...WaitOption) (ticket uint64, err error) {
	err = poll(ctx, newWaitSetting(options), func() (bool, error) {
		granted, t, err := lm.AcquireRead(resource, owner)
		ticket = t
		return granted, err
	})
	return ticket, err
}

// LockWrite queues owner as a writer and blocks until the write lock was granted or ctx ends.
func LockWrite(ctx context.Context, lm ILockManager, resource string, owner LockOwner, options ...WaitOption) error {
	err := poll(ctx, newWaitSetting(options), func() (bool, error) {
		return lm.AcquireWrite(resource, owner, true)
	})
	if err != nil && ctx.Err() != nil {
		withdrawWriter(lm, resource, owner)
	}
	return err
}

// withdrawWriter removes a queued writer. The queue may have granted it after the last poll,
// a granted writer is released instead.
func withdrawWriter(lm ILockManager, resource string, owner LockOwner) {
	cancelled, err := lm.CancelWrite(resource, owner)
	if err != nil {
		log.Warningf("cancel queued writer %s on %s failed: %v", owner, resource, err)
		return
	}
	if cancelled {
		return
	}
	holder, ok, err := lm.GetOwner(resource)
	if err != nil {
		log.Warningf("lookup writer of %s failed: %v", resource, err)
		return
	}
	if ok && holder == owner {
		if _, err := lm.ReleaseWrite(resource, owner); err != nil {
			log.Warningf("release late grant of %s on %s failed: %v", owner, resource, err)
		}
	}
}

// poll calls try until it reports success, fails or ctx ends
func poll(ctx context.Context, setting WaitSetting, try func() (bool, error)) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	backoff := setting.MinInterval
	for {
		granted, err := try()
		if err != nil {
			return err
		}
		if granted {
			return nil
		}

		// jitter in [backoff/2, backoff)
		sleep := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		if timer == nil {
			timer = time.NewTimer(sleep)
		} else {
			timer.Reset(sleep)
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for lock")
		case <-timer.C:
		}

		if backoff *= 2; backoff > setting.MaxInterval {
			backoff = setting.MaxInterval
		}
	}
}
