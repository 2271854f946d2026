package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

func TestListCampaigns_Pagination(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	tmpl := f.template(t)
	for i := 0; i < 5; i++ {
		_, err := f.svc.CreateCampaign(ctx, CreateCampaignInput{Name: "c", TemplateID: tmpl.ID, Target: model.TargetSpec{CompanyIDs: []int64{1}}})
		require.NoError(t, err)
	}

	page1, pagination, err := f.svc.ListCampaigns(ctx, 1, 2, "")
	require.NoError(t, err)
	page3, _, err := f.svc.ListCampaigns(ctx, 3, 2, "")
	require.NoError(t, err)

	assert.Equal(t, 5, pagination["total_count"])
	assert.Equal(t, 3, pagination["total_pages"])
	require.Len(t, page1, 2)
	assert.Greater(t, page1[0].ID, page1[1].ID, "expected descending order")
	assert.Len(t, page3, 1)

	drafts, _, err := f.svc.ListCampaigns(ctx, 1, 20, "draft")
	require.NoError(t, err)
	assert.Len(t, drafts, 5)

	_, _, err = f.svc.ListCampaigns(ctx, 1, 20, "archived")
	assert.True(t, appErrors.IsValidation(err))
}

func TestTemplates_PlaceholdersDerivedOnSave(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	tmpl := f.template(t)
	assert.Equal(t, []string{"name", "region", "offer"}, tmpl.Placeholders)

	updated, err := f.svc.UpdateTemplate(ctx, tmpl.ID, TemplateInput{Name: "改訂版", Subject: "{会社名}様", Body: "{deadline}まで"})
	require.NoError(t, err)
	assert.Equal(t, []string{"会社名", "deadline"}, updated.Placeholders)
	assert.NotNil(t, updated.UpdatedAt)

	got, err := f.svc.GetTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "改訂版", got.Name)

	_, err = f.svc.CreateTemplate(ctx, TemplateInput{Name: "空", Subject: "", Body: "本文"})
	assert.True(t, appErrors.IsValidation(err))

	list, err := f.svc.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteTemplate(ctx, tmpl.ID))
	_, err = f.svc.GetTemplate(ctx, tmpl.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestPreview(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	c, err := f.svc.CreateCampaign(ctx, CreateCampaignInput{
		Name: "c", TemplateID: f.template(t).ID, Target: model.TargetSpec{Region: "東京"},
		Variables: map[string]string{"offer": "無料診断"},
	})
	require.NoError(t, err)

	out, err := f.svc.Preview(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "ABC物流 御中 新サービスのご案内", out.Subject)
	assert.Contains(t, out.Body, "東京エリア")

	_, err = f.svc.Preview(ctx, c.ID, 404)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestRecordEngagementByMessage(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	c := f.sendingCampaign(t, 1)
	_, err := f.svc.Dispatcher.Dispatch(ctx, c.ID)
	require.NoError(t, err)

	msgID := f.sender.Delivered()[0].MessageID
	require.NoError(t, f.svc.RecordEngagementByMessage(ctx, msgID, model.EngagementOpen, time.Time{}))

	st, err := f.svc.GetCampaignStats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.OpenCount)
	assert.Equal(t, 100.0, st.OpenRate)

	err = f.svc.RecordEngagementByMessage(ctx, "00000000-0000-0000-0000-000000000000", model.EngagementOpen, time.Time{})
	assert.True(t, appErrors.IsNotFound(err))
}

func TestGetCampaignDetails(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	c := f.sendingCampaign(t, 1, 2)
	_, err := f.svc.Dispatcher.Dispatch(ctx, c.ID)
	require.NoError(t, err)

	details, err := f.svc.GetCampaignDetails(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, details.Status)
	assert.Equal(t, 2, details.Stats.SentCount)

	st, err := f.svc.QuotaStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Remaining)
}
