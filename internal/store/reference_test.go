package store

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/sign"
)

func TestReferenceRepository_CreateAndGet(t *testing.T) {
	repo := newTestStore(t).References()

	ref := &Reference{Label: " ram ", Features: sign.FeatureVector{0.1, math.NaN(), 0.3}}
	require.NoError(t, repo.Create(ref))

	assert.NotEmpty(t, ref.ID, "an id is assigned")
	assert.Equal(t, "ram", ref.Label)
	assert.False(t, ref.CreatedAt.IsZero())

	got, err := repo.GetByID(ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "ram", got.Label)
	assert.Equal(t, sign.FeatureVector{0.1, 0, 0.3}, got.Features, "non-finite values are stored as 0")

	_, err = repo.GetByID("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReferenceRepository_RejectsBlankLabel(t *testing.T) {
	repo := newTestStore(t).References()
	err := repo.Create(&Reference{Label: "  ", Features: sign.FeatureVector{1}})
	assert.True(t, errors.Is(err, ErrEmptyLabel))

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReferenceRepository_CreateBatchIsAtomic(t *testing.T) {
	repo := newTestStore(t).References()

	err := repo.CreateBatch([]*Reference{
		{Label: "ram", Features: sign.FeatureVector{1}},
		{Label: "", Features: sign.FeatureVector{2}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyLabel))

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, n, "a rejected row rolls back the batch")

	require.NoError(t, repo.CreateBatch([]*Reference{
		{Label: "ram", Features: sign.FeatureVector{1}},
		{Label: "tiger", Features: sign.FeatureVector{2}},
		{Label: "ram", Features: sign.FeatureVector{3}},
	}))
	n, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReferenceRepository_ListAndSamples(t *testing.T) {
	repo := newTestStore(t).References()
	for i, label := range []string{"ram", "tiger", "ram"} {
		require.NoError(t, repo.Create(&Reference{Label: label, Features: sign.FeatureVector{float64(i)}}))
	}

	refs, err := repo.List()
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, []string{"ram", "tiger", "ram"}, []string{refs[0].Label, refs[1].Label, refs[2].Label})

	rams, err := repo.ListByLabel("ram")
	require.NoError(t, err)
	assert.Len(t, rams, 2)

	samples, err := repo.Samples()
	require.NoError(t, err)
	assert.Equal(t, []sign.ReferenceSample{
		{Label: "ram", Features: sign.FeatureVector{0}},
		{Label: "tiger", Features: sign.FeatureVector{1}},
		{Label: "ram", Features: sign.FeatureVector{2}},
	}, samples)

	labels, err := repo.Labels()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ram": 2, "tiger": 1}, labels)
}

func TestReferenceRepository_Delete(t *testing.T) {
	repo := newTestStore(t).References()
	ref := &Reference{Label: "ram", Features: sign.FeatureVector{1}}
	require.NoError(t, repo.Create(ref))
	require.NoError(t, repo.Create(&Reference{Label: "tiger", Features: sign.FeatureVector{2}}))
	require.NoError(t, repo.Create(&Reference{Label: "tiger", Features: sign.FeatureVector{3}}))

	require.NoError(t, repo.Delete(ref.ID))
	assert.True(t, errors.Is(repo.Delete(ref.ID), ErrNotFound))

	removed, err := repo.DeleteByLabel("tiger")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
