package semaphore

import (
	"context"
	"time"

	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

// mutexToken is the value test-and-set into a mutex key; its content never
// matters, only the key's prior absence does.
const mutexToken = "1"

// WithMutex runs action inside a cross-process critical section keyed on key.
// Entry succeeds only if the key had no prior value; the key is deleted on
// every exit path. A positive ttl arms a dead-man's switch so a crashed
// holder cannot block the section forever. Returns false without running
// action when another process holds the key.
func WithMutex(ctx context.Context, st store.Store, key string, ttl time.Duration, action func(ctx context.Context) error) (entered bool, err error) {
	_, existed, err := st.GetSet(ctx, key, mutexToken)
	if err != nil {
		return false, err
	}
	if existed {
		return false, nil
	}

	defer func() {
		if derr := st.Del(ctx, key); derr != nil && err == nil {
			err = derr
		}
	}()

	if ttl > 0 {
		if err := st.Expire(ctx, key, ttl); err != nil {
			return true, err
		}
	}

	return true, action(ctx)
}
