package historicalstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbus-psp/psp-router/internal/candidatestore"
)

func TestStore_Seed_GeneratesDeterministicRowCount(t *testing.T) {
	s := New()
	s.Seed(1, 1, []RowSeed{{PSPName: "alpha-pay", RowCount: 50, ApprovalRate: 0.9}})

	rows, err := s.QuerySegment(context.Background(), 1, 1, time.Now().AddDate(0, 0, -31))
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}

func TestStore_QuerySegment_FiltersOnSince(t *testing.T) {
	s := New()
	now := time.Now()
	s.Append(1, 1, candidatestore.HistoricalRow{PSPName: "alpha-pay", StatusCode: candidatestore.StatusApproved, CreatedAt: now.AddDate(0, 0, -40)})
	s.Append(1, 1, candidatestore.HistoricalRow{PSPName: "alpha-pay", StatusCode: candidatestore.StatusApproved, CreatedAt: now.AddDate(0, 0, -1)})

	rows, err := s.QuerySegment(context.Background(), 1, 1, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "row older than the since cutoff must be excluded")
}

func TestStore_QuerySegment_EmptyForUnknownSegment(t *testing.T) {
	s := New()
	rows, err := s.QuerySegment(context.Background(), 99, 99, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFailingStore_AlwaysFails(t *testing.T) {
	f := FailingStore{Err: errors.New("unreachable")}
	_, err := f.QuerySegment(context.Background(), 1, 1, time.Now())
	assert.EqualError(t, err, "unreachable")
}
