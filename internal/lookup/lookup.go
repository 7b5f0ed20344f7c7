// Package lookup manages the terms-lookup side index.
//
// A lookup document holds a precomputed set of entity ids under a member
// array field. Queries reference the document by index, id and path and the
// search engine resolves the set server-side, so request size does not
// grow with set cardinality.
//
// Documents are written once, before any query references them, and are
// never rewritten afterwards except for their transient flag.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roach88/portalql/internal/esclient"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/logger"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/qerr"
)

// Default side index coordinates.
const (
	DefaultIndex = "terms-lookup"
	DefaultPath  = "values"
)

// Lookup document types, one per kind of entity id.
const (
	DonorIDs    = "donor-ids"
	GeneIDs     = "gene-ids"
	MutationIDs = "mutation-ids"
	FileIDs     = "file-ids"
)

// Document field names besides the member array.
const (
	typeField      = "type"
	transientField = "transient"
	repoField      = "repo"
)

// FilterSpec is everything a query needs to reference a lookup document.
type FilterSpec struct {
	Field string
	Index string
	Type  string
	ID    string
	Path  string
}

// Query returns the terms-lookup query the filter describes.
func (s FilterSpec) Query() *esquery.TermsLookupQuery {
	return &esquery.TermsLookupQuery{
		Field: s.Field,
		Index: s.Index,
		Type:  s.Type,
		ID:    s.ID,
		Path:  s.Path,
	}
}

// Coordinates locate lookup documents: the side index and the name of the
// member array field.
type Coordinates struct {
	Index string
	Path  string
}

// DefaultCoordinates returns the standard side index coordinates.
func DefaultCoordinates() Coordinates {
	return Coordinates{Index: DefaultIndex, Path: DefaultPath}
}

// Reference builds the filter spec for field against lookup document id.
// It performs no I/O.
func (c Coordinates) Reference(field, lookupType, id string) FilterSpec {
	return FilterSpec{
		Field: field,
		Index: c.Index,
		Type:  lookupType,
		ID:    id,
		Path:  c.Path,
	}
}

// ValidateID checks that id is a UUID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return qerr.Invalid("", "lookup id %q is not a UUID", id)
	}
	return nil
}

// Attrs are optional lookup document metadata.
type Attrs struct {
	// Transient marks sets created for a single operation.
	Transient bool

	// Repo is the owning repository name of a file set.
	Repo string
}

// Document is a stored lookup document.
type Document struct {
	ID        string
	Type      string
	Values    []string
	Transient bool
	Repo      string
}

// Client reads and writes lookup documents.
type Client struct {
	es      *elasticsearch.Client
	coords  Coordinates
	logger  *logger.Logger
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithCoordinates overrides the side index coordinates.
func WithCoordinates(c Coordinates) Option {
	return func(cl *Client) { cl.coords = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// New creates a lookup client.
func New(es *elasticsearch.Client, opts ...Option) *Client {
	c := &Client{
		es:     es,
		coords: DefaultCoordinates(),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.logger.Component("lookup")
	return c
}

// Coordinates returns the side index coordinates the client writes to.
func (c *Client) Coordinates() Coordinates {
	return c.coords
}

// Reference builds a filter spec against the client's side index.
func (c *Client) Reference(field, lookupType, id string) FilterSpec {
	return c.coords.Reference(field, lookupType, id)
}

// indexSettings is a single shard replicated to every node, so lookups are
// always served locally.
func (c *Client) indexSettings() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{
				"number_of_shards":     1,
				"auto_expand_replicas": "0-all",
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				c.coords.Path:  map[string]any{"type": "keyword"},
				typeField:      map[string]any{"type": "keyword"},
				transientField: map[string]any{"type": "boolean"},
				repoField:      map[string]any{"type": "keyword"},
			},
		},
	}
}

// Provision creates the side index if it does not exist yet.
func (c *Client) Provision(ctx context.Context) error {
	index := c.coords.Index
	c.log.Info().Str("index", index).Msg("checking lookup index for existence")

	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check lookup index %s: %w", index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		c.log.Info().Str("index", index).Msg("lookup index exists, nothing to do")
		return nil
	}
	if res.StatusCode != 404 {
		return fmt.Errorf("check lookup index %s: unexpected status %d", index, res.StatusCode)
	}

	body, err := esquery.Marshal(c.indexSettings())
	if err != nil {
		return fmt.Errorf("encode lookup index settings: %w", err)
	}

	c.log.Info().Str("index", index).Msg("creating lookup index")
	res, err = c.es.Indices.Create(index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create lookup index %s: %w", index, err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		return fmt.Errorf("create lookup index %s: %w", index, err)
	}

	var ack struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := json.NewDecoder(res.Body).Decode(&ack); err != nil {
		return fmt.Errorf("decode create index response: %w", err)
	}
	if !ack.Acknowledged {
		return fmt.Errorf("creation of lookup index %s was not acknowledged", index)
	}
	return nil
}

// Create writes a lookup document. Writing the same id again replaces the
// document with identical content, so Create is idempotent per id.
func (c *Client) Create(ctx context.Context, lookupType, id string, members []string, attrs Attrs) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if members == nil {
		members = []string{}
	}

	doc := map[string]any{
		c.coords.Path:  members,
		typeField:      lookupType,
		transientField: attrs.Transient,
	}
	if attrs.Repo != "" {
		doc[repoField] = attrs.Repo
	}

	err := c.index(ctx, id, doc)
	c.metrics.ObserveLookupWrite(lookupType, err)
	c.logger.LogLookup(lookupType, id, len(members), err)
	return err
}

func (c *Client) index(ctx context.Context, id string, doc map[string]any) error {
	body, err := esquery.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode lookup document: %w", err)
	}

	start := time.Now()
	res, err := c.es.Index(c.coords.Index, bytes.NewReader(body),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("write lookup document %s: %w", id, err)
	}
	defer res.Body.Close()
	c.log.Debug().Str("id", id).Dur("duration_ms", time.Since(start)).Msg("lookup write completed")

	if err := esclient.Check(res); err != nil {
		return fmt.Errorf("write lookup document %s: %w", id, err)
	}
	return nil
}

// Get reads a lookup document. A missing document is an INVALID_QUERY
// error, since callers only ask for ids they were given.
func (c *Client) Get(ctx context.Context, id string) (*Document, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	res, err := c.es.Get(c.coords.Index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read lookup document %s: %w", id, err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		if esclient.IsNotFound(err) {
			return nil, qerr.Invalid("", "lookup document %s does not exist", id)
		}
		return nil, fmt.Errorf("read lookup document %s: %w", id, err)
	}

	var payload struct {
		Found  bool                       `json:"found"`
		Source map[string]json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode lookup document %s: %w", id, err)
	}
	if !payload.Found {
		return nil, qerr.Invalid("", "lookup document %s does not exist", id)
	}

	doc := &Document{ID: id}
	fields := []struct {
		name string
		dst  any
	}{
		{c.coords.Path, &doc.Values},
		{typeField, &doc.Type},
		{transientField, &doc.Transient},
		{repoField, &doc.Repo},
	}
	for _, f := range fields {
		raw, ok := payload.Source[f.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode lookup document %s field %s: %w", id, f.name, err)
		}
	}
	return doc, nil
}

// RepoName returns the owning repository of a file set.
func (c *Client) RepoName(ctx context.Context, id string) (string, error) {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.Repo == "" {
		return "", qerr.Invalid("", "lookup document %s has no repository", id)
	}
	return doc.Repo, nil
}

// MarkTransient updates the transient flag, the only mutation a lookup
// document allows.
func (c *Client) MarkTransient(ctx context.Context, id string, transient bool) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	body, err := esquery.Marshal(map[string]any{
		"doc": map[string]any{transientField: transient},
	})
	if err != nil {
		return fmt.Errorf("encode transient update: %w", err)
	}

	res, err := c.es.Update(c.coords.Index, id, bytes.NewReader(body), c.es.Update.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("update lookup document %s: %w", id, err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		if esclient.IsNotFound(err) {
			return qerr.Invalid("", "lookup document %s does not exist", id)
		}
		return fmt.Errorf("update lookup document %s: %w", id, err)
	}
	c.log.Info().Str("id", id).Bool("transient", transient).Msg("lookup document transient flag updated")
	return nil
}
