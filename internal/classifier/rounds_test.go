package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/spendcat/internal/category"
)

func TestClassifyAllUntilCompleteConverges(t *testing.T) {
	var rounds []int
	f := newFixture(t, WithRoundProgress(func(round, updated, remaining int) {
		rounds = append(rounds, round)
	}))
	ctx := context.Background()

	f.records.Add("Vendor A", "", 10)
	f.records.Add("Vendor B", "", 20)
	f.embedder.set("Vendor A", clusterVec(0))
	f.embedder.set("Vendor B", clusterVec(1))
	f.oracle.answers = map[string]category.Category{
		"Vendor A": "Shopping",
		"Vendor B": "Travel",
	}

	total, err := f.svc.ClassifyAllUntilComplete(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// Everything resolved in round one; no further rounds run.
	assert.Equal(t, []int{1}, rounds)
	assert.Equal(t, 1, f.oracle.calls)

	remaining, err := f.svc.UnclassifiedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestClassifyAllUntilCompleteStopsWithoutProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The oracle never answers, so round one makes no progress and the
	// driver must stop instead of burning rounds on the same names.
	f.records.Add("Opaque Vendor", "", 10)
	f.embedder.set("Opaque Vendor", clusterVec(0))

	total, err := f.svc.ClassifyAllUntilComplete(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, 1, f.oracle.calls)
}

func TestClassifyAllUntilCompleteRespectsMaxRounds(t *testing.T) {
	f := newFixture(t)

	total, err := f.svc.ClassifyAllUntilComplete(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, f.oracle.calls)
}

func TestClassifyAllUntilCompleteNoBacklog(t *testing.T) {
	f := newFixture(t)
	f.records.Add("Vendor A", "Shopping", 10) // already classified

	total, err := f.svc.ClassifyAllUntilComplete(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, f.oracle.calls)
}
