package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

const setID = "0b1d4a62-6c77-4d33-9a5b-1f0b2b6f1a10"

func model(t *testing.T, typ meta.EntityType) *meta.TypeModel {
	t.Helper()
	r, err := meta.Default()
	require.NoError(t, err)
	return r.MustModel(typ)
}

func compile(t *testing.T, typ meta.EntityType, text string, opts Options) *esquery.Request {
	t.Helper()
	req, err := compileErr(t, typ, text, opts)
	require.NoError(t, err)
	return req
}

func compileErr(t *testing.T, typ meta.EntityType, text string, opts Options) (*esquery.Request, error) {
	t.Helper()
	stmt, err := pql.Parse(text)
	require.NoError(t, err)
	return Compile(stmt, model(t, typ), opts)
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	data, err := esquery.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// filterOf returns the single filter clause of a compiled request.
func filterOf(t *testing.T, req *esquery.Request) esquery.Query {
	t.Helper()
	b, ok := req.Query.(*esquery.BoolQuery)
	require.True(t, ok, "query is %T", req.Query)
	require.Len(t, b.Filter, 1)
	return b.Filter[0]
}

func TestCompile_NonNestedTerm(t *testing.T) {
	req := compile(t, meta.DonorCentric, "eq(gender,'male')", Options{})

	assert.JSONEq(t, `{"term":{"donor_sex":"male"}}`, jsonOf(t, filterOf(t, req)))
	assert.Nil(t, req.PostFilter)
	assert.Equal(t, DefaultSize, req.Size)
}

func TestCompile_NestedOnlyAtDeclaredLevels(t *testing.T) {
	m, err := meta.ParseModel("layered.cue", []byte(`
type:   "layered"
prefix: "layered"
fields: [
	{name: "gene", kind: "array", nested: true, fields: [
		{name: "donor", kind: "object", fields: [
			{name: "donor_sex", kind: "string", aliases: ["donor.gender"]},
		]},
	]},
]`))
	require.NoError(t, err)

	req, err := Compile(pql.MustParse("eq(donor.gender,'female')"), m, Options{})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"nested":{"path":"gene","query":{"term":{"gene.donor.donor_sex":"female"}}}}`,
		jsonOf(t, filterOf(t, req)))
}

func TestCompile_NestedWrappersOutermostFirst(t *testing.T) {
	req := compile(t, meta.DonorCentric, "eq(mutation.consequenceType,'missense')", Options{})

	q := filterOf(t, req)
	var paths []string
	for {
		n, ok := q.(*esquery.NestedQuery)
		if !ok {
			break
		}
		paths = append(paths, n.Path)
		q = n.Query
	}
	assert.Equal(t, []string{"gene", "gene.ssm", "gene.ssm.consequence"}, paths)
	assert.Equal(t, model(t, meta.DonorCentric).NestedPaths("gene.ssm.consequence.consequence_type"), paths)
	assert.JSONEq(t, `{"term":{"gene.ssm.consequence.consequence_type":"missense"}}`, jsonOf(t, q))
}

func TestCompile_MissingMarkerSplit(t *testing.T) {
	req := compile(t, meta.DonorCentric, "in(state,'_missing','live','deceased')", Options{})

	assert.JSONEq(t, `{"bool":{"should":[
		{"bool":{"must_not":[{"exists":{"field":"_summary._state"}}]}},
		{"terms":{"_summary._state":["live","deceased"]}}
	]}}`, jsonOf(t, filterOf(t, req)))
}

func TestCompile_MissingMarkerOnlyAddsOneClause(t *testing.T) {
	with := filterOf(t, compile(t, meta.DonorCentric, "in(gene.symbol,'_missing','TP53','KRAS')", Options{}))
	without := filterOf(t, compile(t, meta.DonorCentric, "in(gene.symbol,'TP53','KRAS')", Options{}))

	// Wrapped once at the nested ancestor, not per branch.
	outer, ok := with.(*esquery.NestedQuery)
	require.True(t, ok)
	assert.Equal(t, "gene", outer.Path)

	or, ok := outer.Query.(*esquery.BoolQuery)
	require.True(t, ok)
	require.Len(t, or.Should, 2)
	assert.JSONEq(t, jsonOf(t, &esquery.MissingQuery{Field: "gene.symbol"}), jsonOf(t, or.Should[0]))
	assert.JSONEq(t, jsonOf(t, without), jsonOf(t, esquery.Nest(or.Should[1], "gene")))
}

func TestCompile_MissingMarkerAlone(t *testing.T) {
	req := compile(t, meta.DonorCentric, "eq(state,'_missing')", Options{})
	assert.JSONEq(t,
		`{"bool":{"must_not":[{"exists":{"field":"_summary._state"}}]}}`,
		jsonOf(t, filterOf(t, req)))
}

func TestCompile_ExplicitNestedScope(t *testing.T) {
	req := compile(t, meta.DonorCentric,
		"nested(gene.ssm,eq(mutation.consequenceType,'missense'),ge(mutation.start,100))", Options{})

	assert.JSONEq(t, `{"nested":{"path":"gene","query":{"nested":{"path":"gene.ssm","query":{"bool":{"must":[
		{"nested":{"path":"gene.ssm.consequence","query":{"term":{"gene.ssm.consequence.consequence_type":"missense"}}}},
		{"range":{"gene.ssm.chromosome_start":{"gte":100}}}
	]}}}}}}`, jsonOf(t, filterOf(t, req)))
}

func TestCompile_NestedScopeErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not nested", "nested(project,eq(projectId,'BRCA-US'))"},
		{"field outside scope", "nested(gene.ssm,eq(gender,'male'))"},
		{"repeated scope", "nested(gene,nested(gene,eq(gene.symbol,'TP53')))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileErr(t, meta.DonorCentric, tt.text, Options{})
			require.Error(t, err)
			assert.True(t, qerr.IsInvalidQuery(err), "got %v", err)
		})
	}
}

func TestCompile_EntitySetReference(t *testing.T) {
	req := compile(t, meta.DonorCentric, "eq(id,'ES:"+setID+"')", Options{})

	assert.JSONEq(t,
		`{"terms":{"_donor_id":{"index":"terms-lookup","id":"`+setID+`","path":"values"}}}`,
		jsonOf(t, filterOf(t, req)))

	lq, ok := filterOf(t, req).(*esquery.TermsLookupQuery)
	require.True(t, ok)
	assert.Equal(t, "donor-ids", lq.Type)
}

func TestCompile_EntitySetMixedWithValues(t *testing.T) {
	req := compile(t, meta.DonorCentric, "in(gene.id,'ENSG1','ES:"+setID+"')", Options{})

	assert.JSONEq(t, `{"nested":{"path":"gene","query":{"bool":{"should":[
		{"terms":{"gene._gene_id":["ENSG1"]}},
		{"terms":{"gene._gene_id":{"index":"terms-lookup","id":"`+setID+`","path":"values"}}}
	]}}}}`, jsonOf(t, filterOf(t, req)))
}

func TestCompile_LookupNode(t *testing.T) {
	req := compile(t, meta.RepositoryFile, "lookup(donorId,'donor-ids','"+setID+"')", Options{})

	q := filterOf(t, req)
	n, ok := q.(*esquery.NestedQuery)
	require.True(t, ok)
	assert.Equal(t, "donors", n.Path)
	lq, ok := n.Query.(*esquery.TermsLookupQuery)
	require.True(t, ok)
	assert.Equal(t, "donors.donor_id", lq.Field)
	assert.Equal(t, "donor-ids", lq.Type)
}

func TestCompile_LookupPayloadIndependentOfSetSize(t *testing.T) {
	// The request carries only the reference, never the members.
	a := jsonOf(t, compile(t, meta.DonorCentric, "eq(id,'ES:"+setID+"')", Options{}))
	b := jsonOf(t, compile(t, meta.DonorCentric, "eq(id,'ES:ffffffff-ffff-4fff-bfff-ffffffffffff')", Options{}))
	assert.Equal(t, len(a), len(b))
}

func TestCompile_InvalidQueries(t *testing.T) {
	tests := []struct {
		name string
		typ  meta.EntityType
		text string
	}{
		{"range on string field", meta.DonorCentric, "gt(gender,'m')"},
		{"non numeric value on numeric field", meta.DonorCentric, "eq(ageAtDiagnosis,'old')"},
		{"entity set on non identifiable field", meta.DonorCentric, "eq(gender,'ES:" + setID + "')"},
		{"malformed entity set id", meta.DonorCentric, "eq(id,'ES:not-a-uuid')"},
		{"lookup on non identifiable field", meta.DonorCentric, "lookup(gender,'donor-ids','" + setID + "')"},
		{"filter on score", meta.DonorCentric, "eq(_score,1)"},
		{"range on location", meta.GeneCentric, "gt(gene.location,'chr1:1-2')"},
		{"bad location", meta.GeneCentric, "eq(gene.location,'chr1:9-2')"},
		{"facet on expansion", meta.GeneCentric, "facets(gene.goTermId)"},
		{"facet on composite", meta.RepositoryFile, "facets(fileCopies)"},
		{"sort on expansion", meta.GeneCentric, "sort(gene.location)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileErr(t, tt.typ, tt.text, Options{})
			require.Error(t, err)
			assert.True(t, qerr.IsInvalidQuery(err), "got %v", err)
		})
	}
}

func TestCompile_UnknownFields(t *testing.T) {
	for _, text := range []string{
		"eq(nope,1)",
		"select(id,nope)",
		"facets(nope)",
		"sort(-nope)",
		"and(eq(gender,'male'),not(exists(nope)))",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := compileErr(t, meta.DonorCentric, text, Options{})
			require.Error(t, err)
			assert.True(t, qerr.IsUnknownField(err), "got %v", err)
		})
	}

	_, err := compileErr(t, meta.Project, "exists(hasPathway)", Options{})
	assert.True(t, qerr.IsUnknownField(err))
}

func TestCompile_NumericStringsAreParsed(t *testing.T) {
	req := compile(t, meta.DonorCentric, "ge(ageAtDiagnosis,'40'),lt(survivalTime,'12.5')", Options{})

	b := req.Query.(*esquery.BoolQuery)
	require.Len(t, b.Filter, 2)
	assert.JSONEq(t, `{"range":{"donor_age_at_diagnosis":{"gte":40}}}`, jsonOf(t, b.Filter[0]))
	assert.JSONEq(t, `{"range":{"donor_survival_time":{"lt":12.5}}}`, jsonOf(t, b.Filter[1]))
}

func TestCompile_NotEqualWrapsInsideNegation(t *testing.T) {
	req := compile(t, meta.DonorCentric, "ne(gene.symbol,'TP53')", Options{})

	assert.JSONEq(t, `{"bool":{"must_not":[
		{"nested":{"path":"gene","query":{"term":{"gene.symbol":"TP53"}}}}
	]}}`, jsonOf(t, filterOf(t, req)))
}

func TestCompile_Combinators(t *testing.T) {
	req := compile(t, meta.DonorCentric,
		"or(eq(gender,'male'),and(eq(vitalStatus,'alive'),not(exists(relapseType))))", Options{})

	assert.JSONEq(t, `{"bool":{"should":[
		{"term":{"donor_sex":"male"}},
		{"bool":{"must":[
			{"term":{"donor_vital_status":"alive"}},
			{"bool":{"must_not":[{"exists":{"field":"donor_relapse_type"}}]}}
		]}}
	]}}`, jsonOf(t, filterOf(t, req)))
}

func TestCompile_GoTermExpansion(t *testing.T) {
	gene := compile(t, meta.GeneCentric, "eq(gene.goTermId,'GO:0005515')", Options{})
	assert.JSONEq(t, `{"bool":{"should":[
		{"term":{"go_term.cellular_component":"GO:0005515"}},
		{"term":{"go_term.biological_process":"GO:0005515"}},
		{"term":{"go_term.molecular_function":"GO:0005515"}}
	]}}`, jsonOf(t, filterOf(t, gene)))

	donor := compile(t, meta.DonorCentric, "in(gene.geneSetId,'REACT_1')", Options{})
	assert.JSONEq(t, `{"nested":{"path":"gene","query":{"bool":{"should":[
		{"terms":{"gene.go_term.cellular_component":["REACT_1"]}},
		{"terms":{"gene.go_term.biological_process":["REACT_1"]}},
		{"terms":{"gene.go_term.molecular_function":["REACT_1"]}},
		{"terms":{"gene.pathway":["REACT_1"]}},
		{"terms":{"gene.curated_set":["REACT_1"]}}
	]}}}}`, jsonOf(t, filterOf(t, donor)))
}

func TestCompile_HasShortcuts(t *testing.T) {
	req := compile(t, meta.DonorCentric, "exists(hasPathway)", Options{})
	assert.JSONEq(t,
		`{"nested":{"path":"gene","query":{"exists":{"field":"gene.pathway"}}}}`,
		jsonOf(t, filterOf(t, req)))

	req = compile(t, meta.GeneCentric, "missing(hasGoTerm)", Options{})
	assert.JSONEq(t, `{"bool":{"must_not":[{"bool":{"should":[
		{"exists":{"field":"go_term.cellular_component"}},
		{"exists":{"field":"go_term.biological_process"}},
		{"exists":{"field":"go_term.molecular_function"}}
	]}}]}}`, jsonOf(t, filterOf(t, req)))
}

func TestCompile_Location(t *testing.T) {
	gene := compile(t, meta.GeneCentric, "eq(gene.location,'chr12:100-200')", Options{})
	assert.JSONEq(t, `{"bool":{"must":[
		{"term":{"chromosome":"12"}},
		{"range":{"start":{"gte":100}}},
		{"range":{"end":{"lte":200}}}
	]}}`, jsonOf(t, filterOf(t, gene)))

	donor := compile(t, meta.DonorCentric, "in(mutation.location,'X:5','chrY')", Options{})
	assert.JSONEq(t, `{"nested":{"path":"gene","query":{"nested":{"path":"gene.ssm","query":{"bool":{"should":[
		{"bool":{"must":[
			{"term":{"gene.ssm.chromosome":"X"}},
			{"range":{"gene.ssm.chromosome_start":{"lte":5}}},
			{"range":{"gene.ssm.chromosome_end":{"gte":5}}}
		]}},
		{"bool":{"must":[{"term":{"gene.ssm.chromosome":"Y"}}]}}
	]}}}}}}`, jsonOf(t, filterOf(t, donor)))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want Location
	}{
		{"chr12:100-200", Location{Chromosome: "12", Start: 100, End: 200}},
		{"X", Location{Chromosome: "X"}},
		{"CHR1:1,000", Location{Chromosome: "1", Start: 1000}},
		{" 7:5-5 ", Location{Chromosome: "7", Start: 5, End: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocation(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "chr", "1:a", "1:0", "1:5-", "1:9-2"} {
		_, err := ParseLocation(bad)
		var le *LocationError
		assert.ErrorAs(t, err, &le, "input %q", bad)
	}
}

func TestCompile_Count(t *testing.T) {
	req := compile(t, meta.DonorCentric, "count(),eq(gender,'male')", Options{PostFilter: true})

	assert.Equal(t, 0, req.Size)
	assert.True(t, req.TrackTotalHits)
	assert.Nil(t, req.PostFilter)
	assert.Empty(t, req.Aggs)
	assert.Empty(t, req.Sort)
	assert.Empty(t, req.Fields)
	assert.NotNil(t, req.Query)
}

func TestCompile_Projection(t *testing.T) {
	req := compile(t, meta.RepositoryFile, "select(*)", Options{})
	assert.Equal(t, []string{"data_bundle.data_bundle_id", "object_id", "id"}, req.Fields)
	assert.Equal(t, []string{"file_copies", "donors"}, req.SourceIncludes)

	req = compile(t, meta.GeneCentric, "select(id,gene.location,_score,chromosome)", Options{})
	assert.Equal(t, []string{"_gene_id", "chromosome", "start", "end"}, req.Fields)
	assert.Empty(t, req.SourceIncludes)

	req = compile(t, meta.GeneCentric, "select(transcripts)", Options{})
	assert.Empty(t, req.Fields)
	assert.Equal(t, []string{"transcripts"}, req.SourceIncludes)
}

func TestCompile_SortAndLimit(t *testing.T) {
	req := compile(t, meta.DonorCentric, "sort(-_score,+gene.symbol),limit(20,5)", Options{})

	assert.Equal(t, []esquery.Sort{
		{Field: "_score", Order: esquery.Desc},
		{Field: "gene.symbol", Order: esquery.Asc, Nested: []string{"gene"}},
	}, req.Sort)
	assert.Equal(t, 20, req.From)
	assert.Equal(t, 5, req.Size)
}

func TestCompile_SortOnDeeplyNestedField(t *testing.T) {
	req := compile(t, meta.DonorCentric, "sort(+mutation.consequenceType)", Options{})

	require.Len(t, req.Sort, 1)
	assert.Equal(t, []string{"gene", "gene.ssm", "gene.ssm.consequence"}, req.Sort[0].Nested)
	assert.JSONEq(t, `{"gene.ssm.consequence.consequence_type":{"order":"asc","nested":{
		"path":"gene","nested":{"path":"gene.ssm","nested":{"path":"gene.ssm.consequence"}}
	}}}`, jsonOf(t, req.Sort[0].Source()))
}

func TestCompile_FacetPairs(t *testing.T) {
	req := compile(t, meta.DonorCentric, "facets(gender)", Options{MaxTermCount: 50})

	assert.JSONEq(t, `{
		"gender":{"terms":{"field":"donor_sex","size":50}},
		"gender_missing":{"missing":{"field":"donor_sex"}}
	}`, jsonOf(t, req.Aggs.Source()))
}

func TestCompile_NestedFacets(t *testing.T) {
	req := compile(t, meta.RepositoryFile, "facets(repoName,fileFormat)", Options{})

	assert.JSONEq(t, `{"nested":{"path":"file_copies"},"aggs":{
		"repoName":{"terms":{"field":"file_copies.repo_name","size":1024}},
		"repoName_missing":{"missing":{"field":"file_copies.repo_name"}}
	}}`, jsonOf(t, req.Aggs["repoName"]))

	assert.JSONEq(t, `{"nested":{"path":"file_copies"},"aggs":{
		"fileFormat":{"terms":{"field":"file_copies.file_format","size":1024},"aggs":{
			"fileFormat":{"reverse_nested":{}}
		}},
		"fileFormat_missing":{"missing":{"field":"file_copies.file_format"}}
	}}`, jsonOf(t, req.Aggs["fileFormat"]))
}

func TestCompile_NestedFacetsFilterEachLevel(t *testing.T) {
	req := compile(t, meta.MutationCentric,
		"facets(platform),eq(platform,'Illumina'),eq(verificationStatus,'tested'),eq(donor.gender,'male'),eq(type,'SNV')",
		Options{})

	// The root clause stays out, the facet's own clause is removed and each
	// level repeats the clauses at and below it.
	assert.JSONEq(t, `{"nested":{"path":"ssm_occurrence"},"aggs":{"platform":{
		"filter":{"bool":{"filter":[
			{"nested":{"path":"ssm_occurrence.observation","query":{"term":{"ssm_occurrence.observation.verification_status":"tested"}}}},
			{"term":{"ssm_occurrence.donor.donor_sex":"male"}}
		]}},
		"aggs":{"platform":{"nested":{"path":"ssm_occurrence.observation"},"aggs":{"platform":{
			"filter":{"bool":{"filter":[{"term":{"ssm_occurrence.observation.verification_status":"tested"}}]}},
			"aggs":{
				"platform":{"terms":{"field":"ssm_occurrence.observation.platform","size":1024}},
				"platform_missing":{"missing":{"field":"ssm_occurrence.observation.platform"}}
			}
		}}}}
	}}}`, jsonOf(t, req.Aggs["platform"]))
}

func TestCompile_NestedFacetsUnwrapLevelScope(t *testing.T) {
	req := compile(t, meta.MutationCentric,
		"facets(platform),nested(ssm_occurrence.observation,eq(verificationStatus,'tested'),eq(sequencingStrategy,'WGS'))",
		Options{PostFilter: true})

	outer, ok := req.Aggs["platform"].(*esquery.FilterAgg)
	require.True(t, ok, "platform is %T", req.Aggs["platform"])
	assert.JSONEq(t, `{"nested":{"path":"ssm_occurrence.observation"},"aggs":{"platform":{
		"filter":{"bool":{"filter":[
			{"term":{"ssm_occurrence.observation.verification_status":"tested"}},
			{"term":{"ssm_occurrence.observation.sequencing_strategy":"WGS"}}
		]}},
		"aggs":{
			"platform":{"terms":{"field":"ssm_occurrence.observation.platform","size":1024}},
			"platform_missing":{"missing":{"field":"ssm_occurrence.observation.platform"}}
		}
	}}}`, jsonOf(t, outer.Aggs["platform"]))
}

func TestCompile_NestedFacetsKeepPartialDisjunctionsOut(t *testing.T) {
	req := compile(t, meta.MutationCentric,
		"facets(platform),or(eq(verificationStatus,'tested'),eq(type,'SNV')),not(and(eq(sequencingStrategy,'WGS'),eq(chromosome,'1')))",
		Options{})

	assert.JSONEq(t, `{"nested":{"path":"ssm_occurrence.observation"},"aggs":{
		"platform":{"terms":{"field":"ssm_occurrence.observation.platform","size":1024}},
		"platform_missing":{"missing":{"field":"ssm_occurrence.observation.platform"}}
	}}`, jsonOf(t, req.Aggs["platform"]))
}

func TestCompile_FacetsAll(t *testing.T) {
	m := model(t, meta.DonorCentric)
	req := compile(t, meta.DonorCentric, "facets(*)", Options{})

	for _, alias := range m.Facets() {
		assert.Contains(t, req.Aggs, alias)
		assert.Contains(t, req.Aggs, MissingAggName(alias))
	}
	assert.NotContains(t, req.Aggs, RepoSizesAgg)
}

func TestCompile_SelfRemovingFacetFilters(t *testing.T) {
	req := compile(t, meta.DonorCentric,
		"facets(gender,vitalStatus),eq(gender,'male'),eq(vitalStatus,'alive')",
		Options{PostFilter: true})

	assert.Nil(t, req.Query)
	assert.JSONEq(t, `{"bool":{"filter":[
		{"term":{"donor_sex":"male"}},
		{"term":{"donor_vital_status":"alive"}}
	]}}`, jsonOf(t, req.PostFilter))

	assert.JSONEq(t, `{"filter":{"bool":{"filter":[{"term":{"donor_vital_status":"alive"}}]}},"aggs":{
		"gender":{"terms":{"field":"donor_sex","size":1024}},
		"gender_missing":{"missing":{"field":"donor_sex"}}
	}}`, jsonOf(t, req.Aggs["gender"]))

	assert.JSONEq(t, `{"filter":{"bool":{"filter":[{"term":{"donor_sex":"male"}}]}},"aggs":{
		"vitalStatus":{"terms":{"field":"donor_vital_status","size":1024}},
		"vitalStatus_missing":{"missing":{"field":"donor_vital_status"}}
	}}`, jsonOf(t, req.Aggs["vitalStatus"]))
}

func TestCompile_SelfRemovingFilterEmptiesToMatchAll(t *testing.T) {
	req := compile(t, meta.DonorCentric, "facets(gender),in(gender,'male','female')", Options{PostFilter: true})

	assert.JSONEq(t, `{"filter":{"match_all":{}},"aggs":{
		"gender":{"terms":{"field":"donor_sex","size":1024}},
		"gender_missing":{"missing":{"field":"donor_sex"}}
	}}`, jsonOf(t, req.Aggs["gender"]))
}

func TestCompile_RepositoryAggregations(t *testing.T) {
	req := compile(t, meta.RepositoryFile, "facets(study),eq(study,'PCAWG')", Options{PostFilter: true})

	full := `{"bool":{"filter":[{"term":{"study":"PCAWG"}}]}}`
	assert.JSONEq(t, `{"filter":`+full+`,"aggs":{"repositoryNamesFiltered":{
		"nested":{"path":"file_copies"},"aggs":{
			"repositoryNamesFiltered":{"terms":{"field":"file_copies.repo_name","size":1024}},
			"repositoryNamesFiltered_missing":{"missing":{"field":"file_copies.repo_name"}}
		}}}}`, jsonOf(t, req.Aggs[RepoNamesAgg]))

	assert.JSONEq(t, `{"filter":`+full+`,"aggs":{"repositorySizes":{
		"nested":{"path":"file_copies"},"aggs":{
			"repositorySizes":{"terms":{"field":"file_copies.repo_name","size":1024},"aggs":{
				"fileSize":{"sum":{"field":"file_copies.file_size"}}
			}}
		}}}}`, jsonOf(t, req.Aggs[RepoSizesAgg]))

	assert.JSONEq(t, `{"filter":`+full+`,"aggs":{"donorCount":{
		"nested":{"path":"donors"},"aggs":{
			"donorCount":{"terms":{"field":"donors.donor_id","size":100000}}
		}}}}`, jsonOf(t, req.Aggs[DonorCountAgg]))

	// The study facet excludes its own clause.
	assert.JSONEq(t, `{"filter":{"match_all":{}},"aggs":{
		"study":{"terms":{"field":"study","size":1024}},
		"study_missing":{"missing":{"field":"study"}}
	}}`, jsonOf(t, req.Aggs["study"]))
}

func TestCompile_RoundTripThroughRender(t *testing.T) {
	for _, text := range []string{
		"select(id,gender),facets(*),eq(gender,'male'),in(state,'_missing','live'),sort(-ageAtDiagnosis),limit(5,10)",
		"count(),nested(gene.ssm,eq(mutation.consequenceType,'missense'),ge(mutation.start,100))",
		"or(eq(id,'ES:" + setID + "'),not(exists(hasPathway)),lt(ssmCount,2.5))",
	} {
		t.Run(text, func(t *testing.T) {
			first := compile(t, meta.DonorCentric, text, Options{PostFilter: true})
			stmt, err := pql.Parse(pql.Render(pql.MustParse(text)))
			require.NoError(t, err)
			second, err := Compile(stmt, model(t, meta.DonorCentric), Options{PostFilter: true})
			require.NoError(t, err)
			assert.Equal(t, jsonOf(t, first), jsonOf(t, second))
		})
	}
}

func TestCompile_IsPure(t *testing.T) {
	stmt := pql.MustParse("facets(*),in(gene.symbol,'_missing','TP53'),eq(id,'ES:" + setID + "')")
	before := pql.Render(stmt)

	a, err := Compile(stmt, model(t, meta.DonorCentric), Options{PostFilter: true})
	require.NoError(t, err)
	b, err := Compile(stmt, model(t, meta.DonorCentric), Options{PostFilter: true})
	require.NoError(t, err)

	assert.Equal(t, jsonOf(t, a), jsonOf(t, b))
	assert.Equal(t, before, pql.Render(stmt))
}

func TestCompile_NilInputs(t *testing.T) {
	_, err := Compile(nil, model(t, meta.DonorCentric), Options{})
	assert.True(t, qerr.IsInvalidQuery(err))

	_, err = Compile(&pql.Statement{}, nil, Options{})
	assert.True(t, qerr.IsInternal(err))
}

func TestCompile_EmptyStatementMatchesAll(t *testing.T) {
	req, err := Compile(&pql.Statement{}, model(t, meta.Project), Options{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(jsonOf(t, req), `"match_all":{}`))
	assert.Contains(t, jsonOf(t, req), `"_source":false`)
}
