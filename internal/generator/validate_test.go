package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revops/internal/dataset"
	"github.com/roach88/revops/internal/vocab"
)

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 42)

	// Break three invariants at once.
	ds.Accounts[0].InPipeline = !ds.Accounts[0].InPipeline
	ds.Accounts[1].State = "ZZ"
	ds.Reps[1].Name = ds.Reps[0].Name

	err := Validate(ds, cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "account 1 inPipeline")
	assert.Contains(t, msg, `account 2 state "ZZ"`)
	assert.Contains(t, msg, "duplicate rep name")
}

func TestValidate_CloseBeforeCreated(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 42)

	for i := range ds.Opportunities {
		if ds.Opportunities[i].CloseDate != nil {
			early := ds.Opportunities[i].CreatedDate.AddDays(-1)
			ds.Opportunities[i].CloseDate = &early
			break
		}
	}
	err := Validate(ds, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precedes created_date")
}

func TestValidate_DanglingReference(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 42)
	ds.Opportunities[0].AccountID = 9999

	err := Validate(ds, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid accountId 9999")
}

func TestValidateRegions_HomeStateOutsideRegion(t *testing.T) {
	v := &vocab.Vocabulary{StateRegions: map[string]string{"CA": "West", "NY": "Northeast"}}
	ds := &dataset.Dataset{Reps: []dataset.Rep{
		{ID: 1, Name: "Ana Diaz", HomeState: "CA", Region: "West", TerritoryID: 1},
		{ID: 2, Name: "Ben Fox", HomeState: "NY", Region: "West", TerritoryID: 1},
		{ID: 3, Name: "Cy Gale", HomeState: "ZZ", Region: "West", TerritoryID: 1},
	}}

	err := ValidateRegions(ds, v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rep 2 homeState "NY" is in region "Northeast", not "West"`)
	assert.Contains(t, err.Error(), `rep 3 homeState "ZZ" is not a known state`)
	assert.NotContains(t, err.Error(), "rep 1 ")
}

func TestValidate_TerritorySpansRegions(t *testing.T) {
	cfg := DefaultConfig()
	ds := generate(t, cfg, 42)

	var other *dataset.Rep
	for i := 1; i < len(ds.Reps); i++ {
		if ds.Reps[i].TerritoryID == ds.Reps[0].TerritoryID {
			other = &ds.Reps[i]
			break
		}
	}
	require.NotNil(t, other, "default config assigns several reps per territory")
	other.Region = ds.Reps[0].Region + " Other"

	err := Validate(ds, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has reps in regions")
}
