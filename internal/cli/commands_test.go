package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/portalql/internal/config"
	"github.com/roach88/portalql/internal/testutil"
)

const lookupID = "01890a5d-ac96-774b-bcce-b302099a8057"

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeData decodes the data member of a JSON CLI response.
func decodeData(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

// writeConfig writes a config file pointing at fake and a temporary store.
func writeConfig(t *testing.T, fake *testutil.FakeEngine) string {
	t.Helper()
	t.Setenv(config.EnvAddresses, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "portalql.yaml")
	data := fmt.Sprintf(`search:
  addresses: [%q]
scroll:
  batch_size: 100
store:
  path: %q
log:
  level: disabled
`, fake.URL(), filepath.Join(dir, "sets.db"))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", "facets(*), eq(gender, \"male\")")
	require.NoError(t, err)
	assert.Equal(t, "facets(*),eq(gender,'male')\n", out)
}

func TestParseCommand_Verbose(t *testing.T) {
	out, err := execute(t, "-v", "parse", "select(id),sort(-ageAtDiagnosis),limit(0,5)")
	require.NoError(t, err)
	assert.Contains(t, out, "select: id")
	assert.Contains(t, out, "limit:  from 0 size 5")
}

func TestParseCommand_SyntaxError(t *testing.T) {
	out, err := execute(t, "--format", "json", "parse", "eq(gender")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SYNTAX_ERROR", resp.Error.Code)
}

func TestCompileCommand_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", "donor", "eq(gender,'male')")
	require.NoError(t, err)

	data := decodeData(t, out)
	assert.Equal(t, "donor-centric", data["entity"])
	assert.Equal(t, "donor-centric", data["index"])

	body, err := json.Marshal(data["body"])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"filter":[{"term":{"donor_sex":"male"}}]`)
}

func TestCompileCommand_PostFilterAndOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.json")
	out, err := execute(t, "compile", "file", "facets(fileFormat),eq(fileFormat,'BAM')", "--post-filter", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Request written to "+path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body, "post_filter")
	assert.Contains(t, body, "aggs")
}

func TestCompileCommand_UnknownField(t *testing.T) {
	out, err := execute(t, "--format", "json", "compile", "donor", "eq(shoeSize,1)")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNKNOWN_FIELD", resp.Error.Code)
	assert.Equal(t, map[string]any{"field": "shoeSize"}, resp.Error.Details)
}

func TestCompileCommand_UnknownEntity(t *testing.T) {
	_, err := execute(t, "compile", "patient", "eq(gender,'male')")
	require.Error(t, err)
}

func TestModelsCommand(t *testing.T) {
	out, err := execute(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "donor-centric")
	assert.Contains(t, out, "repository-file")

	out, err = execute(t, "--format", "json", "models", "donor")
	require.NoError(t, err)
	data := decodeData(t, out)
	assert.Equal(t, "donor-centric", data["type"])
	assert.Equal(t, "donor-ids", data["lookup_type"])
	assert.NotEmpty(t, data["fields"])
}

func TestSearchCommand_Hits(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodPost, "/donor-centric/_search", testutil.Reply(http.StatusOK, map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": 2},
			"hits": []any{
				map[string]any{"_id": "DO1", "fields": map[string]any{"donor_sex": []any{"male"}}},
				map[string]any{"_id": "DO2", "fields": map[string]any{"donor_sex": []any{"male"}}},
			},
		},
	}))

	out, err := execute(t, "-c", writeConfig(t, fake), "search", "donor", "eq(gender,'male')")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2")
	assert.Contains(t, out, "DO1 donor_sex=[male]")
	assert.Len(t, fake.RequestsTo(http.MethodPost, "/donor-centric/_search"), 1)
}

func TestSearchCommand_Facets(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodPost, "/donor-centric/_search", testutil.Reply(http.StatusOK, map[string]any{
		"hits": map[string]any{"total": map[string]any{"value": 12}, "hits": []any{}},
		"aggregations": map[string]any{
			"primarySite":         map[string]any{"buckets": []any{map[string]any{"key": "Brain", "doc_count": 12}}},
			"primarySite_missing": map[string]any{"doc_count": 0},
		},
	}))

	out, err := execute(t, "-c", writeConfig(t, fake), "--format", "json",
		"search", "donor", "facets(primarySite),limit(0,0)")
	require.NoError(t, err)

	var resp struct {
		Data []SearchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.EqualValues(t, 12, resp.Data[0].Total)
	assert.EqualValues(t, 12, resp.Data[0].Facets["primarySite"].Total)
	assert.Equal(t, "Brain", resp.Data[0].Facets["primarySite"].Terms[0].Term)
}

func TestSearchCommand_CountUsesCountEndpoint(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodPost, "/donor-centric/_count", testutil.Reply(http.StatusOK, map[string]any{"count": 42}))

	out, err := execute(t, "-c", writeConfig(t, fake), "search", "donor", "count(),eq(gender,'male')")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 42")

	reqs := fake.RequestsTo(http.MethodPost, "/donor-centric/_count")
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"query"}, keys(reqs[0].JSON(t)))
}

func TestSearchCommand_SeveralStatementsUseMultiSearch(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	item := func(total int) map[string]any {
		return map[string]any{"status": 200, "hits": map[string]any{"total": map[string]any{"value": total}, "hits": []any{}}}
	}
	fake.Handle(http.MethodPost, "/donor-centric/_msearch", testutil.Reply(http.StatusOK, map[string]any{
		"responses": []any{item(7), item(5)},
	}))

	out, err := execute(t, "-c", writeConfig(t, fake), "--format", "json", "search", "donor", "--count",
		"eq(gender,'male')", "eq(gender,'female')")
	require.NoError(t, err)

	var resp struct {
		Data []SearchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.EqualValues(t, 7, resp.Data[0].Total)
	assert.EqualValues(t, 5, resp.Data[1].Total)

	reqs := fake.RequestsTo(http.MethodPost, "/donor-centric/_msearch")
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Lines(), 4)
}

func TestSearchCommand_RejectsBeforeConnecting(t *testing.T) {
	fake := testutil.NewFakeEngine(t)

	_, err := execute(t, "-c", writeConfig(t, fake), "search", "donor", "eq(gender,'male')", "eq(shoeSize,1)")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, fake.Requests())
}

func TestSearchCommand_EngineFailure(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodPost, "/donor-centric/_search", testutil.Reply(http.StatusForbidden, map[string]any{
		"error":  map[string]any{"type": "security_exception", "reason": "no permission"},
		"status": 403,
	}))

	_, err := execute(t, "-c", writeConfig(t, fake), "search", "donor", "eq(gender,'male')")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLookupCreateAndShow(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodPut, "/terms-lookup/_doc/"+lookupID, testutil.Reply(http.StatusCreated, map[string]any{"result": "created"}))
	fake.Handle(http.MethodGet, "/terms-lookup/_doc/"+lookupID, testutil.Reply(http.StatusOK, map[string]any{
		"_id":   lookupID,
		"found": true,
		"_source": map[string]any{
			"values":    []string{"FI1", "FI2"},
			"type":      "file-ids",
			"transient": true,
			"repo":      "TCGA",
		},
	}))
	cfg := writeConfig(t, fake)

	out, err := execute(t, "-c", cfg, "lookup", "create", "--type", "file-ids", "--id", lookupID,
		"--transient", "--repo", "TCGA", "FI1", "FI2")
	require.NoError(t, err)
	assert.Contains(t, out, "Created file-ids lookup "+lookupID+" with 2 member(s)")

	reqs := fake.RequestsTo(http.MethodPut, "/terms-lookup/_doc/"+lookupID)
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{
		"values":    []any{"FI1", "FI2"},
		"type":      "file-ids",
		"transient": true,
		"repo":      "TCGA",
	}, reqs[0].JSON(t))

	out, err = execute(t, "-c", cfg, "--format", "json", "lookup", "show", lookupID)
	require.NoError(t, err)
	data := decodeData(t, out)
	assert.Equal(t, "file-ids", data["type"])
	assert.Equal(t, []any{"FI1", "FI2"}, data["values"])
	assert.Equal(t, "TCGA", data["repo"])
}

func TestLookupCreate_RejectsBadFlags(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	cfg := writeConfig(t, fake)

	_, err := execute(t, "-c", cfg, "lookup", "create", "--type", "project-ids", "P1")
	require.Error(t, err)

	_, err = execute(t, "-c", cfg, "lookup", "create", "--id", "not-a-uuid", "DO1")
	require.Error(t, err)
	assert.Empty(t, fake.Requests())
}

func TestLookupProvision(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodHead, "/terms-lookup", testutil.Reply(http.StatusNotFound, nil))
	fake.Handle(http.MethodPut, "/terms-lookup", testutil.Reply(http.StatusOK, map[string]any{"acknowledged": true}))

	out, err := execute(t, "-c", writeConfig(t, fake), "lookup", "provision")
	require.NoError(t, err)
	assert.Contains(t, out, "Lookup index terms-lookup ready")
	assert.Len(t, fake.RequestsTo(http.MethodPut, "/terms-lookup"), 1)
}

func TestSetsLifecycle(t *testing.T) {
	fake := testutil.NewFakeEngine(t)
	fake.Handle(http.MethodPost, "/donor-centric/_search", testutil.Reply(http.StatusOK, map[string]any{
		"_scroll_id": "cursor",
		"hits": map[string]any{
			"total": map[string]any{"value": 2},
			"hits": []any{
				map[string]any{"_id": "DO1", "fields": map[string]any{"_donor_id": []any{"DO1"}}},
				map[string]any{"_id": "DO2", "fields": map[string]any{"_donor_id": []any{"DO2"}}},
			},
		},
	}))
	empty := testutil.Reply(http.StatusOK, map[string]any{"hits": map[string]any{"hits": []any{}}})
	fake.HandlePrefix(http.MethodPost, "/_search/scroll", empty)
	fake.HandlePrefix(http.MethodGet, "/_search/scroll", empty)
	fake.HandlePrefix(http.MethodDelete, "/_search/scroll", testutil.Reply(http.StatusOK, map[string]any{}))
	fake.HandlePrefix(http.MethodPut, "/terms-lookup/_doc/", testutil.Reply(http.StatusCreated, map[string]any{"result": "created"}))
	fake.HandlePrefix(http.MethodPost, "/terms-lookup/_update/", testutil.Reply(http.StatusOK, map[string]any{"result": "updated"}))
	cfg := writeConfig(t, fake)

	out, err := execute(t, "-c", cfg, "--format", "json", "sets", "materialize", "donor", "eq(gender,'male')",
		"--name", "Male donors", "--limit", "10")
	require.NoError(t, err)
	data := decodeData(t, out)
	id, _ := data["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "FINISHED", data["state"])
	assert.EqualValues(t, 2, data["count"])
	assert.Equal(t, "donor-ids", data["lookup_type"])

	out, err = execute(t, "-c", cfg, "sets", "list", "donor")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Male donors")

	out, err = execute(t, "-c", cfg, "sets", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "filter: eq(gender,'male')")

	_, err = execute(t, "-c", cfg, "sets", "delete", id)
	require.NoError(t, err)
	assert.Len(t, fake.RequestsTo(http.MethodPost, "/terms-lookup/_update/"+id), 1)

	out, err = execute(t, "-c", cfg, "sets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No entity sets")
}

func TestSetsMaterialize_RequiresName(t *testing.T) {
	fake := testutil.NewFakeEngine(t)

	_, err := execute(t, "-c", writeConfig(t, fake), "sets", "materialize", "donor", "eq(gender,'male')")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, fake.Requests())
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ donor_filters")
	assert.Contains(t, out, "✓ file_post_filter")
	assert.Contains(t, out, "All scenarios passed")
}

const cliScenario = `name: male
description: "Gender filter"
entity: donor
steps:
  - pql: "eq(gender,'male')"
`

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "male.yaml"), []byte(cliScenario), 0o644))

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ male")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "male.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"donor_sex": "male"`)

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "male.golden"), []byte("{}"), 0o644))
	out, err = execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "do not match golden file")
}

func TestTestCommand_FilterAndMissingDir(t *testing.T) {
	out, err := execute(t, "test", filepath.Join("..", "harness", "testdata", "scenarios"), "--filter", "nothing_*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, err = execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
