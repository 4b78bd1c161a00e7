//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-adsync/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/testhelpers"
)

func setupLeadTest(t *testing.T) (*testhelpers.EngineDB, LeadRepository) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Reset(t)
	return engineDB, NewLeadRepository(engineDB.DB)
}

func strPtr(s string) *string { return &s }

func newLead(id string, createdAt time.Time) *models.Lead {
	return &models.Lead{
		LeadID:     id,
		FormID:     "f1",
		FormName:   "Signup",
		CampaignID: "c1",
		Source:     models.LeadSourceSync,
		CreatedAt:  createdAt,
		Fields: []models.LeadField{
			{Name: "E-Mail Address", MappedName: strPtr("email"), Value: "a@example.com"},
			{Name: "Lieblingsfarbe", Value: "blau"},
		},
	}
}

func TestLeadRepository_InsertDeduplicates(t *testing.T) {
	engineDB, repo := setupLeadTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	inserted, err := repo.InsertLeads(ctx, []*models.Lead{newLead("L1", now), newLead("L2", now)})
	require.NoError(t, err)
	assert.Len(t, inserted, 2)

	existing, err := repo.ExistingLeadIDs(ctx, []string{"L1", "L3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"L1": true}, existing)

	// L1 again: no new lead row and no duplicated field values.
	inserted, err = repo.InsertLeads(ctx, []*models.Lead{newLead("L1", now), newLead("L3", now)})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "L3", inserted[0].LeadID)

	var leads, values int
	require.NoError(t, engineDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM leads").Scan(&leads))
	require.NoError(t, engineDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM lead_field_values").Scan(&values))
	assert.Equal(t, 3, leads)
	assert.Equal(t, 6, values)
}

func TestLeadRepository_FieldValuesKeepMappedName(t *testing.T) {
	_, repo := setupLeadTest(t)
	ctx := context.Background()

	inserted, err := repo.InsertLeads(ctx, []*models.Lead{newLead("L1", time.Now())})
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	values, err := repo.FieldValues(ctx, inserted[0].ID)
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.NotNil(t, values[0].MappedFieldName)
	assert.Equal(t, "email", *values[0].MappedFieldName)
	assert.Nil(t, values[1].MappedFieldName)

	names, err := repo.UnmappedFieldNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lieblingsfarbe"}, names)

	n, err := repo.SetMappedFieldName(ctx, "Lieblingsfarbe", "comments")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	names, err = repo.UnmappedFieldNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLeadRepository_FormLeadCountsPagesThroughAllRows(t *testing.T) {
	_, repo := setupLeadTest(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var batch []*models.Lead
	for i := 0; i < formLeadPageSize+5; i++ {
		l := newLead(uuid.NewString(), base)
		l.Fields = nil
		if i%2 == 1 {
			l.CampaignID = "c2"
			l.CreatedAt = base.AddDate(0, 1, 0)
		}
		batch = append(batch, l)
	}
	_, err := repo.InsertLeads(ctx, batch)
	require.NoError(t, err)

	counts, err := repo.FormLeadCounts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, formLeadPageSize+5, counts["c1"]+counts["c2"])

	march, _ := models.ParseDateRange("2024-03-01", "2024-03-31")
	counts, err = repo.FormLeadCounts(ctx, &march)
	require.NoError(t, err)
	assert.Zero(t, counts["c2"])
	assert.Equal(t, (formLeadPageSize+5+1)/2, counts["c1"])

	n, err := repo.CountInRange(ctx, &march, "")
	require.NoError(t, err)
	assert.Equal(t, counts["c1"], n)
}

func TestLeadRepository_ListAndGet(t *testing.T) {
	_, repo := setupLeadTest(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.InsertLeads(ctx, []*models.Lead{newLead("L1", now), newLead("L2", now.Add(-time.Hour))})
	require.NoError(t, err)

	page, err := repo.List(ctx, models.LeadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "L1", page.Items[0].LeadID)

	page, err = repo.List(ctx, models.LeadFilter{Search: "L2"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	got, err := repo.GetByID(ctx, page.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Signup", got.FormName)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
