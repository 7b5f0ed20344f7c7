package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/portalql/internal/esclient"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/qerr"
)

// Harvest defaults.
const (
	DefaultKeepAlive = 10 * time.Second
	DefaultBatchSize = 1000
)

// HarvestOptions control a scroll harvest.
type HarvestOptions struct {
	// KeepAlive is how long the engine keeps the cursor between batches.
	KeepAlive time.Duration

	// BatchSize is the number of hits per round trip.
	BatchSize int

	// Limit caps the number of collected values. Zero means no cap.
	Limit int

	// Field names the indexed field whose values are collected. Empty
	// collects document ids.
	Field string
}

func (o HarvestOptions) withDefaults() HarvestOptions {
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Harvest collects values from every hit of req in index, in scroll order.
// Repeated values are kept once. Sort, paging and aggregations of req are
// replaced; only its filter matters.
func (e *Executor) Harvest(ctx context.Context, index string, req *esquery.Request, opts HarvestOptions) ([]string, error) {
	if req == nil {
		return nil, qerr.Internal("harvest request is nil")
	}
	if opts.Limit < 0 {
		return nil, qerr.Invalid("", "harvest limit must not be negative, got %d", opts.Limit)
	}
	opts = opts.withDefaults()

	start := time.Now()
	h := &harvest{limit: opts.Limit, seen: make(map[string]bool)}
	err := e.harvest(ctx, index, scanRequest(req, opts), opts, h)
	e.observe(OpScroll, index, start, int64(len(h.values)), err)
	if err != nil {
		return nil, err
	}
	return h.values, nil
}

// harvest accumulates distinct values up to a limit.
type harvest struct {
	limit  int
	seen   map[string]bool
	values []string
}

// add records hits and reports whether the limit has been reached.
func (h *harvest) add(hits []Hit, field string) bool {
	for _, hit := range hits {
		for _, v := range hit.Values(field) {
			if h.seen[v] {
				continue
			}
			h.seen[v] = true
			h.values = append(h.values, v)
			if h.limit > 0 && len(h.values) >= h.limit {
				return true
			}
		}
	}
	return false
}

// scanRequest narrows req to what a harvest needs: the filter, the
// harvested field and index order.
func scanRequest(req *esquery.Request, opts HarvestOptions) *esquery.Request {
	scan := &esquery.Request{
		Query: filterQuery(req),
		Size:  opts.BatchSize,
		Sort:  []esquery.Sort{{Field: "_doc", Order: esquery.Asc}},
	}
	if opts.Field != "" && opts.Field != "_id" {
		scan.Fields = []string{opts.Field}
	}
	return scan
}

// filterQuery returns the query selecting the documents req matches. A
// post filter narrows hits, so it is folded into the query.
func filterQuery(req *esquery.Request) esquery.Query {
	if req.PostFilter == nil {
		return req.Query
	}
	if req.Query == nil {
		return req.PostFilter
	}
	return &esquery.BoolQuery{Filter: []esquery.Query{req.Query, req.PostFilter}}
}

func (e *Executor) harvest(ctx context.Context, index string, req *esquery.Request, opts HarvestOptions, h *harvest) error {
	resp, err := e.search(ctx, index, req, opts.KeepAlive)
	if err != nil {
		return err
	}

	scrollID := resp.scrollID
	defer func() {
		if scrollID != "" {
			e.clearScroll(scrollID)
		}
	}()

	for {
		e.metrics.ObserveScrollBatch(len(resp.Hits))
		if len(resp.Hits) == 0 || h.add(resp.Hits, opts.Field) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err = e.scroll(ctx, scrollID, opts.KeepAlive)
		if err != nil {
			return err
		}
		if resp.scrollID != "" {
			scrollID = resp.scrollID
		}
	}
}

func (e *Executor) scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*Response, error) {
	body, err := json.Marshal(map[string]string{
		"scroll":    fmt.Sprintf("%dms", keepAlive.Milliseconds()),
		"scroll_id": scrollID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode scroll request: %w", err)
	}

	res, err := e.es.Scroll(
		e.es.Scroll.WithContext(ctx),
		e.es.Scroll.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	defer res.Body.Close()
	if err := esclient.Check(res); err != nil {
		return nil, fmt.Errorf("scroll: %w", err)
	}
	return decodeResponse(res.Body)
}

// clearScroll releases the cursor. It runs on a fresh context so a
// cancelled harvest still frees server resources; failures are logged only.
func (e *Executor) clearScroll(scrollID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := json.Marshal(map[string][]string{"scroll_id": {scrollID}})
	if err != nil {
		return
	}
	res, err := e.es.ClearScroll(
		e.es.ClearScroll.WithContext(ctx),
		e.es.ClearScroll.WithBody(bytes.NewReader(body)),
	)
	if err == nil {
		defer res.Body.Close()
		err = esclient.Check(res)
	}
	if err != nil {
		e.clog.Warn().Err(err).Msg("failed to clear scroll cursor")
	}
}
