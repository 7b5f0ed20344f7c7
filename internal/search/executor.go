package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"

	"github.com/roach88/portalql/internal/esclient"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/logger"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/qerr"
)

// Operation labels used in logs and metrics.
const (
	OpSearch      = "search"
	OpMultiSearch = "msearch"
	OpCount       = "count"
	OpScroll      = "scroll"
)

// Executor runs compiled requests.
//
// Thread-safety: an Executor holds no mutable state and is safe for
// concurrent use.
type Executor struct {
	es      *elasticsearch.Client
	log     *logger.Logger
	clog    zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithMetrics records round trips and scroll batches.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates an Executor.
func New(es *elasticsearch.Client, opts ...Option) *Executor {
	e := &Executor{es: es, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	e.clog = e.log.Component("search")
	return e
}

func (e *Executor) observe(op, index string, start time.Time, hits int64, err error) {
	d := time.Since(start)
	e.metrics.ObserveSearch(op, d, err)
	e.log.LogSearch(op, index, d, hits, err)
}

// Search runs req against index.
func (e *Executor) Search(ctx context.Context, index string, req *esquery.Request) (*Response, error) {
	start := time.Now()
	resp, err := e.search(ctx, index, req, 0)
	var total int64
	if resp != nil {
		total = resp.Total
	}
	e.observe(OpSearch, index, start, total, err)
	return resp, err
}

// search sends one search request, opening a scroll cursor when keepAlive
// is set.
func (e *Executor) search(ctx context.Context, index string, req *esquery.Request, keepAlive time.Duration) (*Response, error) {
	if req == nil {
		return nil, qerr.Internal("search request is nil")
	}
	body, err := esquery.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	opts := []func(*esapi.SearchRequest){
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(index),
		e.es.Search.WithBody(bytes.NewReader(body)),
	}
	if keepAlive > 0 {
		opts = append(opts, e.es.Search.WithScroll(keepAlive))
	}
	res, err := e.es.Search(opts...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	return decodeResponse(res.Body)
}

// MultiSearch runs reqs against index in one round trip. The result holds
// one response per request, in request order.
func (e *Executor) MultiSearch(ctx context.Context, index string, reqs []*esquery.Request) ([]*Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	start := time.Now()
	resps, err := e.multiSearch(ctx, index, reqs)
	var total int64
	for _, r := range resps {
		total += r.Total
	}
	e.observe(OpMultiSearch, index, start, total, err)
	if err != nil {
		return nil, err
	}
	return resps, nil
}

func (e *Executor) multiSearch(ctx context.Context, index string, reqs []*esquery.Request) ([]*Response, error) {
	var buf bytes.Buffer
	for i, req := range reqs {
		if req == nil {
			return nil, qerr.Internal("msearch request %d is nil", i)
		}
		body, err := esquery.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encode msearch request %d: %w", i, err)
		}
		buf.WriteString("{}\n")
		buf.Write(body)
		buf.WriteByte('\n')
	}

	res, err := e.es.Msearch(&buf,
		e.es.Msearch.WithContext(ctx),
		e.es.Msearch.WithIndex(index),
	)
	if err != nil {
		return nil, fmt.Errorf("msearch %s: %w", index, err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		return nil, fmt.Errorf("msearch %s: %w", index, err)
	}

	var payload struct {
		Responses []json.RawMessage `json:"responses"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode msearch response: %w", err)
	}
	if len(payload.Responses) != len(reqs) {
		return nil, qerr.Internal("msearch returned %d responses for %d requests", len(payload.Responses), len(reqs))
	}

	resps := make([]*Response, len(reqs))
	for i, item := range payload.Responses {
		var head struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(item, &head); err != nil {
			return nil, fmt.Errorf("decode msearch item %d: %w", i, err)
		}
		if len(head.Error) > 0 && string(head.Error) != "null" {
			return nil, fmt.Errorf("msearch item %d: %w", i, esclient.DecodeError(head.Status, item))
		}
		var raw rawResponse
		if err := json.Unmarshal(item, &raw); err != nil {
			return nil, fmt.Errorf("decode msearch item %d: %w", i, err)
		}
		resps[i] = raw.response()
	}
	return resps, nil
}

// Count returns the number of documents in index matching req's query
// and post filter. Everything else is ignored.
func (e *Executor) Count(ctx context.Context, index string, req *esquery.Request) (int64, error) {
	start := time.Now()
	n, err := e.count(ctx, index, req)
	e.observe(OpCount, index, start, n, err)
	return n, err
}

func (e *Executor) count(ctx context.Context, index string, req *esquery.Request) (int64, error) {
	if req == nil {
		return 0, qerr.Internal("count request is nil")
	}
	counted := &esquery.Request{Query: filterQuery(req)}
	body, err := esquery.Marshal(map[string]any{"query": counted.Source()["query"]})
	if err != nil {
		return 0, fmt.Errorf("encode count request: %w", err)
	}

	res, err := e.es.Count(
		e.es.Count.WithContext(ctx),
		e.es.Count.WithIndex(index),
		e.es.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}

	var payload struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return payload.Count, nil
}
