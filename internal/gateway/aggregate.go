package gateway

import "context"

// ReadRequest is one sub-fetch in a best-effort aggregate read.
type ReadRequest struct {
	// Key names the result slot, e.g. "upcoming", "alerts".
	Key      string
	Endpoint string
	Params   map[string]string
}

// AggregateResult holds whatever sub-fetches produced, plus which ones
// failed. A dashboard renders the sections it has and placeholders for the
// rest, instead of failing wholesale because one projection was unavailable.
type AggregateResult struct {
	Results map[string]ReadResult
	Failed  map[string]error
}

// PartialFailure reports whether some, but not all, sub-fetches failed.
func (a AggregateResult) PartialFailure() bool {
	return len(a.Failed) > 0 && len(a.Results) > 0
}

// ReadAll performs a best-effort aggregate fetch: every request is
// attempted in order, per-request failures are collected rather than
// propagated, and the caller gets partial results plus the failure list.
//
// Requests run sequentially, which keeps cache writes ordered.
func (g *Gateway) ReadAll(ctx context.Context, reqs []ReadRequest) AggregateResult {
	agg := AggregateResult{
		Results: make(map[string]ReadResult, len(reqs)),
		Failed:  make(map[string]error),
	}

	for _, req := range reqs {
		res, err := g.Read(ctx, req.Endpoint, req.Params)
		if err != nil {
			agg.Failed[req.Key] = err
			continue
		}
		agg.Results[req.Key] = res
	}
	return agg
}
