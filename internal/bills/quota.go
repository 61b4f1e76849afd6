package bills

import (
	"context"
	"fmt"
	"sync"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
)

// QuotaExceededError is returned when a user already holds the maximum
// number of bill records.
type QuotaExceededError struct {
	Current int64
	Max     int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("bill limit reached: %d of %d", e.Current, e.Max)
}

// quota counts stored records plus uploads still in flight in this process.
// Checks for one user are serialized by that user's lock; mu only guards the
// maps and is never held across a store call. Two processes sharing one
// store can still both pass the check.
type quota struct {
	store storage.BillStore
	max   int64

	mu       sync.Mutex
	inflight map[string]int64
	users    map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newQuota(store storage.BillStore, max int) *quota {
	return &quota{
		store:    store,
		max:      int64(max),
		inflight: make(map[string]int64),
		users:    make(map[string]*userLock),
	}
}

func (q *quota) lockUser(userID string) func() {
	q.mu.Lock()
	l, ok := q.users[userID]
	if !ok {
		l = &userLock{}
		q.users[userID] = l
	}
	l.refs++
	q.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		q.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(q.users, userID)
		}
		q.mu.Unlock()
	}
}

// reserve takes a slot for userID. The returned release must be called once
// the upload has either been stored or abandoned.
func (q *quota) reserve(ctx context.Context, userID string) (func(), error) {
	unlock := q.lockUser(userID)
	defer unlock()

	stored, err := q.store.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	current := stored + q.inflight[userID]
	if current >= q.max {
		return nil, &QuotaExceededError{Current: current, Max: q.max}
	}
	q.inflight[userID]++

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.inflight[userID]--
			if q.inflight[userID] <= 0 {
				delete(q.inflight, userID)
			}
		})
	}, nil
}
