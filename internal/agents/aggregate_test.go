package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadforge/prospect-cli/internal/model"
	"github.com/leadforge/prospect-cli/internal/store"
)

func TestMergeRecords(t *testing.T) {
	records := []model.ScrapedRecord{
		{
			CompanyName: "Brukpol",
			SourceURL:   "https://registry/f1",
			SourceType:  model.SourceRegistry,
			RegistryID:  "f1",
			PKDPrimary:  "4399Z",
			ContactDetails: model.ContactDetails{
				Phones: []string{"48123456789"},
			},
		},
		{
			CompanyName: "Brukpol Sp. z o.o.",
			SourceURL:   "https://brukpol.pl",
			SourceType:  model.SourceCompanyWebsite,
			Description: "Układanie kostki brukowej.",
			ContactDetails: model.ContactDetails{
				Emails: []string{"biuro@brukpol.pl"},
			},
		},
		{
			CompanyName: "Inna Firma",
			SourceURL:   "https://inna.pl",
			SourceType:  model.SourcePortal,
			ContactDetails: model.ContactDetails{
				Emails: []string{"kontakt@inna.pl"},
			},
		},
	}

	merged := MergeRecords(records)
	require.Len(t, merged, 2)

	brukpol := merged[0]
	assert.Equal(t, "Brukpol", brukpol.CompanyName)
	assert.Equal(t, "f1", brukpol.RegistryID)
	// Contact union across sources.
	assert.Equal(t, []string{"48123456789"}, brukpol.ContactDetails.Phones)
	assert.Equal(t, []string{"biuro@brukpol.pl"}, brukpol.ContactDetails.Emails)
	// Description filled from the scraped record.
	assert.Equal(t, "Układanie kostki brukowej.", brukpol.Description)
	// The registry stays the canonical source.
	assert.Equal(t, model.SourceRegistry, brukpol.SourceType)
	assert.Equal(t, "https://registry/f1", brukpol.SourceURL)

	assert.Equal(t, "Inna Firma", merged[1].CompanyName)
}

func TestMergeRecordsByContactOverlap(t *testing.T) {
	// Different names, same email: one entity.
	merged := MergeRecords([]model.ScrapedRecord{
		{CompanyName: "Brukpol", ContactDetails: model.ContactDetails{Emails: []string{"biuro@brukpol.pl"}}},
		{CompanyName: "Bruk-Pol Usługi", ContactDetails: model.ContactDetails{Emails: []string{"biuro@brukpol.pl"}, Phones: []string{"601602603"}}},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, []string{"601602603"}, merged[0].ContactDetails.Phones)
}

func TestMergeRecordsEmpty(t *testing.T) {
	assert.Empty(t, MergeRecords(nil))
}

func TestAggregatorRunWritesAggregatedBucket(t *testing.T) {
	st := store.NewMemory()
	task := newTestTask(t, st)
	ctx := context.Background()

	require.NoError(t, st.AppendResults(ctx, task.ID, model.BucketRegistry, []model.ScrapedRecord{
		{CompanyName: "Brukpol", RegistryID: "f1", SourceType: model.SourceRegistry,
			ContactDetails: model.ContactDetails{Emails: []string{"biuro@brukpol.pl"}}},
	}))
	require.NoError(t, st.AppendResults(ctx, task.ID, model.BucketCompanyPages, []model.ScrapedRecord{
		{CompanyName: "Brukpol Sp. z o.o.", SourceType: model.SourceCompanyWebsite,
			ContactDetails: model.ContactDetails{Phones: []string{"601602603"}}},
	}))

	// Reload so the aggregator sees the buckets.
	task, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)

	a := NewAggregator(st, nil)
	require.NoError(t, a.Run(ctx, task))

	stored, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	agg := stored.Results[model.BucketAggregated]
	require.Len(t, agg, 1)
	assert.Equal(t, []string{"biuro@brukpol.pl"}, agg[0].ContactDetails.Emails)
	assert.Equal(t, []string{"601602603"}, agg[0].ContactDetails.Phones)
}

func TestAggregatorRunEmptyBuckets(t *testing.T) {
	st := store.NewMemory()
	task := newTestTask(t, st)

	a := NewAggregator(st, nil)
	require.NoError(t, a.Run(context.Background(), task))

	stored, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Results[model.BucketAggregated])
}
