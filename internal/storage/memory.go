package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryBillStore is an in-process BillStore for tests and local runs
// without MongoDB.
type MemoryBillStore struct {
	mu      sync.RWMutex
	records map[primitive.ObjectID]BillRecord

	// Now stamps inserted records; defaults to time.Now.
	Now func() time.Time
}

func NewMemoryBillStore() *MemoryBillStore {
	return &MemoryBillStore{
		records: make(map[primitive.ObjectID]BillRecord),
		Now:     time.Now,
	}
}

func (m *MemoryBillStore) CountByUser(ctx context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.records {
		if rec.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryBillStore) Insert(ctx context.Context, rec *BillRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now().UTC()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryBillStore) FindForUser(ctx context.Context, id, userID string) (*BillRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[objectID]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryBillStore) ListForUser(ctx context.Context, userID string, q ListQuery) ([]BillRecord, int64, error) {
	q = q.Normalized()

	matched := m.newestFirst(func(rec BillRecord) bool {
		return rec.UserID == userID && (q.Status == "" || rec.Status == q.Status)
	})
	total := int64(len(matched))

	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return []BillRecord{}, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]BillRecord, 0, end-start)
	for _, rec := range matched[start:end] {
		rec.ExtractedText = ""
		page = append(page, rec)
	}
	return page, total, nil
}

func (m *MemoryBillStore) DeleteForUser(ctx context.Context, id, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[objectID]
	if !ok || rec.UserID != userID {
		return ErrNotFound
	}
	delete(m.records, objectID)
	return nil
}

func (m *MemoryBillStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBillStore) CountByStatus(ctx context.Context, userID string) (StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts StatusCounts
	for _, rec := range m.records {
		if rec.UserID == userID {
			counts.add(rec.Status, 1)
		}
	}
	return counts, nil
}

func (m *MemoryBillStore) RecentForUser(ctx context.Context, userID string, n int) ([]BillRecord, error) {
	matched := m.newestFirst(func(rec BillRecord) bool { return rec.UserID == userID })
	if len(matched) > n {
		matched = matched[:n]
	}
	for i := range matched {
		matched[i].ExtractedText = ""
	}
	return matched, nil
}

func (m *MemoryBillStore) newestFirst(keep func(BillRecord) bool) []BillRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []BillRecord{}
	for _, rec := range m.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
