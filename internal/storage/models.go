package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/analysis"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned for ids that do not exist or belong to another user.
var ErrNotFound = errors.New("bill analysis not found")

// Status of a bill record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// BillRecord is one analyzed bill owned by a user.
type BillRecord struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OriginalFileName string             `bson:"originalFileName" json:"originalFileName"`
	FileType         string             `bson:"fileType" json:"fileType"`
	ExtractedText    string             `bson:"extractedText,omitempty" json:"extractedText,omitempty"`
	TotalPages       int                `bson:"totalPages" json:"totalPages"`
	ExtractedVia     string             `bson:"extractedVia" json:"extractedVia"`
	Analysis         analysis.Analysis  `bson:"analysis" json:"analysis"`
	UserID           string             `bson:"userId" json:"userId"`
	Status           Status             `bson:"status" json:"status"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ListQuery selects one page of a user's records.
type ListQuery struct {
	Page   int
	Limit  int
	Status Status
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50

	// MaxPage keeps (Page-1)*Limit well inside int64.
	MaxPage = 1 << 20
)

// Normalized clamps page and limit into range.
func (q ListQuery) Normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

// StatusCounts aggregates a user's records by status.
type StatusCounts struct {
	Total      int64 `json:"totalAnalyses"`
	Completed  int64 `json:"completedAnalyses"`
	Failed     int64 `json:"failedAnalyses"`
	Processing int64 `json:"processingAnalyses"`
}

func (c *StatusCounts) add(status Status, n int64) {
	c.Total += n
	switch status {
	case StatusCompleted:
		c.Completed += n
	case StatusFailed:
		c.Failed += n
	case StatusProcessing:
		c.Processing += n
	}
}

// BillStore persists bill records. Every operation except DeleteCreatedBefore
// is scoped to one user.
type BillStore interface {
	CountByUser(ctx context.Context, userID string) (int64, error)
	Insert(ctx context.Context, rec *BillRecord) error
	FindForUser(ctx context.Context, id, userID string) (*BillRecord, error)
	ListForUser(ctx context.Context, userID string, q ListQuery) ([]BillRecord, int64, error)
	DeleteForUser(ctx context.Context, id, userID string) error
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context, userID string) (StatusCounts, error)
	RecentForUser(ctx context.Context, userID string, n int) ([]BillRecord, error)
}
