package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/qerr"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	r, err := meta.Default()
	require.NoError(t, err)
	return New(r, opts...)
}

func TestEngine_Golden(t *testing.T) {
	tests := []struct {
		name string
		typ  meta.EntityType
		text string
		opts Options
	}{
		{
			name: "donor_search",
			typ:  meta.DonorCentric,
			text: "select(id,gender),facets(gender),eq(gender,'male'),in(gene.id,'_missing','ENSG1'),sort(-ageAtDiagnosis),limit(20,5)",
		},
		{
			name: "file_post_filter",
			typ:  meta.RepositoryFile,
			text: "facets(fileFormat),eq(fileFormat,'BAM'),eq(donorId,'ES:" + setID + "')",
			opts: Options{PostFilter: true},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, WithOptions(tt.opts))
			req, err := e.CompileText(tt.typ, tt.text)
			require.NoError(t, err)

			data, err := esquery.MarshalIndent(req)
			require.NoError(t, err)
			g.Assert(t, tt.name, data)
		})
	}
}

func TestEngine_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := newEngine(t, WithMetrics(m))

	_, err := e.CompileText(meta.DonorCentric, "eq(gender,'male')")
	require.NoError(t, err)
	_, err = e.CompileText(meta.DonorCentric, "eq(nope,'x')")
	require.Error(t, err)
	_, err = e.CompileText(meta.DonorCentric, "eq(")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompilesTotal.WithLabelValues("donor-centric", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CompilesTotal.WithLabelValues("donor-centric", "error")))
}

func TestEngine_Errors(t *testing.T) {
	e := newEngine(t)

	_, err := e.CompileText(meta.DonorCentric, "eq(gender")
	assert.True(t, qerr.IsSyntax(err))

	_, err = e.CompileText(meta.EntityType("spaceship"), "eq(gender,'male')")
	assert.True(t, qerr.IsInvalidQuery(err))
}

func TestEngine_Accessors(t *testing.T) {
	e := newEngine(t, WithOptions(Options{MaxTermCount: 7}))
	assert.Equal(t, 7, e.Options().MaxTermCount)
	assert.NotNil(t, e.Registry())
}
