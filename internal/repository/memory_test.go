package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

func TestMemoryCampaigns_TransitionIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCampaigns()
	c := &model.Campaign{Name: "c"}
	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, model.StatusDraft, c.Status)

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	ok, err := repo.Transition(ctx, c.ID, model.StatusChange{
		From: model.StatusDraft, To: model.StatusScheduled, At: at, RecipientIDs: []int64{3, 1},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale guard loses.
	ok, err = repo.Transition(ctx, c.ID, model.StatusChange{From: model.StatusDraft, To: model.StatusCancelled, At: at})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.Equal(t, []int64{3, 1}, got.RecipientIDs)
	assert.Equal(t, 2, got.TargetCount)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, got.UpdatedAt.Equal(at))

	_, err = repo.Transition(ctx, 99, model.StatusChange{From: model.StatusDraft, To: model.StatusScheduled})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestMemoryCampaigns_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCampaigns()
	c := &model.Campaign{Name: "c", Variables: map[string]string{"offer": "a"}}
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	got.Variables["offer"] = "b"
	got.Status = model.StatusFailed

	again, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Variables["offer"])
	assert.Equal(t, model.StatusDraft, again.Status)
}

func TestMemoryDeliveries_CreateOncePerKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDeliveries()

	first := &model.DeliveryRecord{CampaignID: 1, RecipientID: 2, MessageID: "m-1", Outcome: model.OutcomeSent, Attempts: 1}
	inserted, err := repo.Create(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Create(ctx, &model.DeliveryRecord{CampaignID: 1, RecipientID: 2, MessageID: "m-2", Outcome: model.OutcomeFailed})
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := repo.GetByMessageID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSent, rec.Outcome)

	_, err = repo.GetByMessageID(ctx, "m-2")
	assert.True(t, appErrors.IsNotFound(err))

	counts, err := repo.CountByOutcome(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.OutcomeSent])
	assert.Equal(t, 0, counts[model.OutcomeFailed])
}

func TestMatchesFilter(t *testing.T) {
	c := model.Company{Name: "ABC物流", Region: "東京", Industry: "物流"}
	tests := []struct {
		name string
		spec model.TargetSpec
		want bool
	}{
		{"region", model.TargetSpec{Region: "東京"}, true},
		{"other region", model.TargetSpec{Region: "大阪"}, false},
		{"full width name", model.TargetSpec{NameQuery: "ａｂｃ"}, true},
		{"lower case name", model.TargetSpec{NameQuery: "abc"}, true},
		{"combined", model.TargetSpec{Region: "東京", Industry: "物流", NameQuery: "物流"}, true},
		{"industry mismatch", model.TargetSpec{Region: "東京", Industry: "建設"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilter(c, tt.spec))
		})
	}
}

func TestDayKey(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	at := time.Date(2026, 4, 1, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-04-01", DayKey(at, nil))
	assert.Equal(t, "2026-04-02", DayKey(at, tokyo))
}
