package facet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

func rawAggs(t *testing.T, s string) Aggregations {
	t.Helper()
	var raw Aggregations
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func model(t *testing.T, typ meta.EntityType) *meta.TypeModel {
	t.Helper()
	r, err := meta.Default()
	require.NoError(t, err)
	m, err := r.Model(typ)
	require.NoError(t, err)
	return m
}

func TestNormalize_TermsAndMissingPair(t *testing.T) {
	raw := rawAggs(t, `{
		"vitalStatus": {"sum_other_doc_count": 3, "buckets": [
			{"key": "alive", "doc_count": 10},
			{"key": "deceased", "doc_count": 4}
		]},
		"vitalStatus_missing": {"doc_count": 2}
	}`)

	facets, err := Normalize(raw, []string{"vitalStatus"})
	require.NoError(t, err)
	assert.Equal(t, TermFacet{
		Type:    TypeTerms,
		Total:   14,
		Missing: 2,
		Other:   3,
		Terms:   []Term{{"alive", 10}, {"deceased", 4}},
	}, facets["vitalStatus"])
}

func TestNormalize_UnwrapsNestedAndFilterLayers(t *testing.T) {
	raw := rawAggs(t, `{
		"gene.type": {"doc_count": 90, "gene.type": {"doc_count": 300,
			"gene.type": {"buckets": [
				{"key": "protein_coding", "doc_count": 250, "gene.type": {"doc_count": 80}},
				{"key": "lincRNA", "doc_count": 50, "gene.type": {"doc_count": 12}}
			]},
			"gene.type_missing": {"doc_count": 0}
		}}
	}`)

	facets, err := Normalize(raw, []string{"gene.type"})
	require.NoError(t, err)
	f := facets["gene.type"]
	assert.Equal(t, []Term{{"protein_coding", 80}, {"lincRNA", 12}}, f.Terms)
	assert.EqualValues(t, 92, f.Total)
}

func TestNormalize_UnwrapsFilteredNestedLevels(t *testing.T) {
	raw := rawAggs(t, `{
		"platform": {"doc_count": 40, "platform": {"doc_count": 120, "platform": {"doc_count": 70,
			"platform": {"doc_count": 200, "platform": {"doc_count": 150,
				"platform": {"buckets": [
					{"key": "Illumina HiSeq", "doc_count": 110},
					{"key": "SOLiD", "doc_count": 30}
				]},
				"platform_missing": {"doc_count": 10}
			}}
		}}}
	}`)

	facets, err := Normalize(raw, []string{"platform"})
	require.NoError(t, err)
	assert.Equal(t, TermFacet{
		Type:    TypeTerms,
		Total:   140,
		Missing: 10,
		Terms:   []Term{{"Illumina HiSeq", 110}, {"SOLiD", 30}},
	}, facets["platform"])
}

func TestNormalize_NumericAndBooleanKeys(t *testing.T) {
	raw := rawAggs(t, `{
		"age": {"buckets": [
			{"key": 42, "doc_count": 1},
			{"key": 1, "key_as_string": "true", "doc_count": 2}
		]},
		"age_missing": {"doc_count": 0}
	}`)
	facets, err := Normalize(raw, []string{"age"})
	require.NoError(t, err)
	assert.Equal(t, []Term{{"42", 1}, {"true", 2}}, facets["age"].Terms)
}

func TestNormalize_AbsentAggregationIsInternal(t *testing.T) {
	raw := rawAggs(t, `{"gender": {"buckets": []}, "gender_missing": {"doc_count": 0}}`)

	_, err := Normalize(raw, []string{"gender", "vitalStatus"})
	require.Error(t, err)
	assert.True(t, qerr.IsInternal(err))

	_, err = Normalize(rawAggs(t, `{"gender": {"buckets": []}}`), []string{"gender"})
	assert.True(t, qerr.IsInternal(err))
}

func TestNormalize_RepositoryAggregations(t *testing.T) {
	raw := rawAggs(t, `{
		"repositoryNamesFiltered": {"doc_count": 5, "repositoryNamesFiltered": {"doc_count": 7,
			"repositoryNamesFiltered": {"buckets": [
				{"key": "Collaboratory", "doc_count": 4},
				{"key": "AWS - Virginia", "doc_count": 3}
			]},
			"repositoryNamesFiltered_missing": {"doc_count": 1}
		}},
		"repositorySizes": {"doc_count": 5, "repositorySizes": {"doc_count": 7,
			"repositorySizes": {"buckets": [
				{"key": "Collaboratory", "doc_count": 4, "fileSize": {"value": 4096.0}},
				{"key": "AWS - Virginia", "doc_count": 3, "fileSize": {"value": 1024.0}}
			]}
		}},
		"donorCount": {"doc_count": 5, "donorCount": {"doc_count": 9,
			"donorCount": {"buckets": [
				{"key": "DO1", "doc_count": 5},
				{"key": "DO2", "doc_count": 3},
				{"key": "DO3", "doc_count": 1}
			]}
		}}
	}`)

	facets, err := Normalize(raw, []string{engine.RepoNamesAgg, engine.RepoSizesAgg, engine.DonorCountAgg})
	require.NoError(t, err)

	data, err := json.MarshalIndent(facets, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "repository_aggregations", data)
}

func TestAliases(t *testing.T) {
	donor := model(t, meta.DonorCentric)
	assert.Nil(t, Aliases(pql.Projection{}, donor))
	assert.Equal(t, []string{"gender"}, Aliases(pql.Projection{Fields: []string{"gender"}}, donor))

	file := model(t, meta.RepositoryFile)
	assert.Equal(t,
		[]string{"fileFormat", engine.RepoNamesAgg, engine.RepoSizesAgg, engine.DonorCountAgg},
		Aliases(pql.Projection{Fields: []string{"fileFormat"}}, file))
}

func TestFill(t *testing.T) {
	f := TermFacet{Type: TypeTerms, Total: 3, Terms: []Term{{"female", 3}}}
	filled := Fill(f, []string{"male", "female"})

	assert.Equal(t, []Term{{"female", 3}, {"male", 0}}, filled.Terms)
	assert.EqualValues(t, 3, filled.Total)
	assert.Len(t, f.Terms, 1, "input facet is not modified")
}

func staticBaseline(b Baseline, calls *int) BaselineSource {
	return BaselineFunc(func(context.Context, *meta.TypeModel) (Baseline, error) {
		*calls++
		return b, nil
	})
}

func TestNormalizer_FillsPhenotypesFromBaseline(t *testing.T) {
	// The filter removed every male donor.
	raw := rawAggs(t, `{
		"gender": {"buckets": [{"key": "female", "doc_count": 12}]},
		"gender_missing": {"doc_count": 0},
		"primarySite": {"buckets": [{"key": "Brain", "doc_count": 12}]},
		"primarySite_missing": {"doc_count": 0}
	}`)

	var calls int
	source := staticBaseline(Baseline{"gender": {"male", "female"}, "primarySite": {"Liver"}}, &calls)
	n := NewNormalizer(source)

	facets, err := n.Normalize(context.Background(), raw, model(t, meta.DonorCentric), []string{"gender", "primarySite"})
	require.NoError(t, err)
	assert.Equal(t, []Term{{"female", 12}, {"male", 0}}, facets["gender"].Terms)
	assert.Equal(t, []Term{{"Brain", 12}}, facets["primarySite"].Terms, "only phenotypes are padded")
	assert.Equal(t, 1, calls)
}

func TestNormalizer_SkipsBaselineWithoutPhenotypes(t *testing.T) {
	raw := rawAggs(t, `{"primarySite": {"buckets": []}, "primarySite_missing": {"doc_count": 0}}`)

	var calls int
	n := NewNormalizer(staticBaseline(Baseline{}, &calls))
	_, err := n.Normalize(context.Background(), raw, model(t, meta.DonorCentric), []string{"primarySite"})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestNormalizer_BaselineFailure(t *testing.T) {
	raw := rawAggs(t, `{"gender": {"buckets": []}, "gender_missing": {"doc_count": 0}}`)
	n := NewNormalizer(BaselineFunc(func(context.Context, *meta.TypeModel) (Baseline, error) {
		return nil, errors.New("engine unavailable")
	}))

	_, err := n.Normalize(context.Background(), raw, model(t, meta.DonorCentric), []string{"gender"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine unavailable")
}

func TestBaselineCache_HitsAndMisses(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	cache := NewBaselineCache(4, DefaultBaselineTTL, m)
	donor := model(t, meta.DonorCentric)

	var calls int
	source := staticBaseline(Baseline{"gender": {"male"}}, &calls)
	for range 3 {
		b, err := cache.Get(context.Background(), donor, source)
		require.NoError(t, err)
		assert.Equal(t, []string{"male"}, b["gender"])
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.BaselineCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BaselineCacheTotal.WithLabelValues("miss")))

	cache.Purge()
	_, err := cache.Get(context.Background(), donor, source)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBaselineCache_FailuresAreNotCached(t *testing.T) {
	cache := NewBaselineCache(4, DefaultBaselineTTL, nil)
	donor := model(t, meta.DonorCentric)

	fail := true
	source := BaselineFunc(func(context.Context, *meta.TypeModel) (Baseline, error) {
		if fail {
			return nil, errors.New("timeout")
		}
		return Baseline{"gender": {"female"}}, nil
	})

	_, err := cache.Get(context.Background(), donor, source)
	require.Error(t, err)

	fail = false
	b, err := cache.Get(context.Background(), donor, source)
	require.NoError(t, err)
	assert.Equal(t, []string{"female"}, b["gender"])
}

func TestSearchBaseline_RunsUnfilteredFacetQuery(t *testing.T) {
	reg, err := meta.Default()
	require.NoError(t, err)
	e := engine.New(reg)

	var sent *esquery.Request
	source := NewSearchBaseline(e, func(_ context.Context, typ meta.EntityType, req *esquery.Request) (Aggregations, error) {
		assert.Equal(t, meta.DonorCentric, typ)
		sent = req
		return rawAggs(t, `{
			"gender": {"buckets": [{"key": "male", "doc_count": 5}, {"key": "female", "doc_count": 4}]},
			"gender_missing": {"doc_count": 0},
			"vitalStatus": {"buckets": [{"key": "alive", "doc_count": 9}]},
			"vitalStatus_missing": {"doc_count": 0},
			"ageAtDiagnosisGroup": {"buckets": [{"key": "50 - 59", "doc_count": 9}]},
			"ageAtDiagnosisGroup_missing": {"doc_count": 0}
		}`), nil
	})

	b, err := source.Baseline(context.Background(), reg.MustModel(meta.DonorCentric))
	require.NoError(t, err)
	assert.Equal(t, Baseline{
		"gender":              {"male", "female"},
		"vitalStatus":         {"alive"},
		"ageAtDiagnosisGroup": {"50 - 59"},
	}, b)

	require.NotNil(t, sent)
	assert.Nil(t, sent.Query)
	assert.Zero(t, sent.Size)
	assert.Contains(t, sent.Aggs, "gender")
	assert.Contains(t, sent.Aggs, "gender_missing")
}

func TestSearchBaseline_ModelWithoutPhenotypes(t *testing.T) {
	reg, err := meta.Default()
	require.NoError(t, err)
	source := NewSearchBaseline(engine.New(reg), func(context.Context, meta.EntityType, *esquery.Request) (Aggregations, error) {
		t.Fatal("no query expected")
		return nil, nil
	})

	b, err := source.Baseline(context.Background(), reg.MustModel(meta.GeneCentric))
	require.NoError(t, err)
	assert.Empty(t, b)
}
