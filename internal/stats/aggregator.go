package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/arqma/arqbot/internal/fetch"
	"github.com/arqma/arqbot/internal/metrics"
)

// Source names used in logs, metrics and AggregateError.Failed.
const (
	SourcePoolsPage   = "pools_page"
	SourcePoolsData   = "pools_data"
	SourceNetworkInfo = "network_info"
	SourceEmission    = "emission"
	SourcePrice       = "price"
)

var sourceOrder = []string{SourcePoolsPage, SourcePoolsData, SourceNetworkInfo, SourceEmission, SourcePrice}

const unknownPool = "Unknown Pool"

// Endpoints lists the upstream URLs the aggregator reads.
type Endpoints struct {
	PoolsPage   string
	PoolsData   string
	NetworkInfo string
	Emission    string
	Price       string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		PoolsPage:   "https://miningpoolstats.stream/arqma",
		PoolsData:   "https://data.miningpoolstats.stream/data/arqma.js",
		NetworkInfo: "https://explorer.arqma.com/api/networkinfo",
		Emission:    "https://explorer.arqma.com/api/emission",
		Price:       "https://tradeogre.com/api/v1/ticker/arq-btc",
	}
}

// Aggregator composes fetches into pool and network stats. It keeps no
// state between calls and is safe for concurrent use.
type Aggregator struct {
	fetcher   fetch.Fetcher
	page      fetch.TextFetcher
	endpoints Endpoints
	logger    *slog.Logger
}

type Option func(*Aggregator)

// WithPageFetcher routes the pool listing page through tf (e.g. fetch.Browser).
func WithPageFetcher(tf fetch.TextFetcher) Option {
	return func(a *Aggregator) {
		if tf != nil {
			a.page = tf
		}
	}
}

func NewAggregator(f fetch.Fetcher, endpoints Endpoints, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher:   f,
		page:      f,
		endpoints: endpoints,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type poolsResponse struct {
	Data []struct {
		PoolID   *string      `json:"pool_id"`
		Hashrate *json.Number `json:"hashrate"`
	} `json:"data"`
}

// FetchPools reads the pool page token, then the pool data keyed by it, and
// returns pools sorted by descending hashrate.
func (a *Aggregator) FetchPools(ctx context.Context) ([]PoolEntry, error) {
	page, err := a.page.FetchText(ctx, SourcePoolsPage, a.endpoints.PoolsPage)
	if err != nil {
		return nil, a.fail("pools", map[string]error{SourcePoolsPage: err})
	}

	token, err := ExtractToken(page)
	if err != nil {
		a.logger.Error("extract pools token failed", "source", SourcePoolsPage, "error", err)
		return nil, a.fail("pools", map[string]error{SourcePoolsPage: err})
	}

	dataURL, err := withQuery(a.endpoints.PoolsData, "t", token)
	if err != nil {
		a.logger.Error("build pools data url failed", "source", SourcePoolsData, "error", err)
		return nil, a.fail("pools", map[string]error{SourcePoolsData: err})
	}

	var resp poolsResponse
	if err := a.fetcher.FetchJSON(ctx, SourcePoolsData, dataURL, &resp); err != nil {
		return nil, a.fail("pools", map[string]error{SourcePoolsData: err})
	}

	pools := make([]PoolEntry, 0, len(resp.Data))
	for _, p := range resp.Data {
		name := unknownPool
		if p.PoolID != nil {
			name = *p.PoolID
		}
		var hr float64
		if p.Hashrate != nil {
			if v, err := p.Hashrate.Float64(); err == nil {
				hr = v
			}
		}
		pools = append(pools, PoolEntry{Name: name, Hashrate: hr})
	}

	sort.SliceStable(pools, func(i, j int) bool { return pools[i].Hashrate > pools[j].Hashrate })
	for i := range pools {
		pools[i].HashrateDisplay = FormatHashrate(pools[i].Hashrate)
	}
	return pools, nil
}

type networkInfoResponse struct {
	Data *struct {
		Height     *json.Number `json:"height"`
		HashRate   *json.Number `json:"hash_rate"`
		Difficulty *json.Number `json:"difficulty"`
	} `json:"data"`
}

type emissionResponse struct {
	Data *struct {
		Coinbase *json.Number `json:"coinbase"`
	} `json:"data"`
}

type priceResponse struct {
	Price *decimal.Decimal `json:"price"`
}

// FetchNetwork reads network info, emission and price independently. The
// result is all-or-nothing: one failed source fails the whole call.
func (a *Aggregator) FetchNetwork(ctx context.Context) (*NetworkStats, error) {
	var (
		out    NetworkStats
		mu     sync.Mutex
		failed = make(map[string]error)
		wg     sync.WaitGroup
	)

	run := func(source string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				failed[source] = err
				mu.Unlock()
			}
		}()
	}

	run(SourceNetworkInfo, func() error {
		snap, err := a.fetchNetworkInfo(ctx)
		if err == nil {
			out.Network = snap
		}
		return err
	})
	run(SourceEmission, func() error {
		snap, err := a.fetchEmission(ctx)
		if err == nil {
			out.Emission = snap
		}
		return err
	})
	run(SourcePrice, func() error {
		snap, err := a.fetchPrice(ctx)
		if err == nil {
			out.Price = snap
		}
		return err
	})
	wg.Wait()

	if len(failed) > 0 {
		return nil, a.fail("network", failed)
	}
	return &out, nil
}

func (a *Aggregator) fetchNetworkInfo(ctx context.Context) (NetworkSnapshot, error) {
	var resp networkInfoResponse
	if err := a.fetcher.FetchJSON(ctx, SourceNetworkInfo, a.endpoints.NetworkInfo, &resp); err != nil {
		return NetworkSnapshot{}, err
	}
	if resp.Data == nil {
		return NetworkSnapshot{}, a.shapeError(SourceNetworkInfo, "missing data object")
	}

	snap := NetworkSnapshot{
		Height:     parseCount(resp.Data.Height),
		Difficulty: parseCount(resp.Data.Difficulty),
	}
	if resp.Data.HashRate != nil {
		if v, err := resp.Data.HashRate.Float64(); err == nil {
			snap.HashrateMHs = v / mega
		}
	}
	return snap, nil
}

func (a *Aggregator) fetchEmission(ctx context.Context) (EmissionSnapshot, error) {
	var resp emissionResponse
	if err := a.fetcher.FetchJSON(ctx, SourceEmission, a.endpoints.Emission, &resp); err != nil {
		return EmissionSnapshot{}, err
	}
	if resp.Data == nil || resp.Data.Coinbase == nil {
		return EmissionSnapshot{}, a.shapeError(SourceEmission, "missing data.coinbase")
	}

	display, err := emissionDisplay(*resp.Data.Coinbase)
	if err != nil {
		return EmissionSnapshot{}, a.shapeError(SourceEmission, err.Error())
	}
	return EmissionSnapshot{Display: display}, nil
}

func (a *Aggregator) fetchPrice(ctx context.Context) (PriceSnapshot, error) {
	var resp priceResponse
	if err := a.fetcher.FetchJSON(ctx, SourcePrice, a.endpoints.Price, &resp); err != nil {
		return PriceSnapshot{}, err
	}
	if resp.Price == nil {
		return PriceSnapshot{}, a.shapeError(SourcePrice, "missing price")
	}
	return FormatPrice(*resp.Price), nil
}

func (a *Aggregator) shapeError(source, msg string) error {
	err := &fetch.ParseError{Source: source, Err: errors.New(msg)}
	a.logger.Error("unexpected upstream payload", "source", source, "error", err)
	return err
}

func (a *Aggregator) fail(op string, failed map[string]error) error {
	ae := newAggregateError(op, failed)
	metrics.AggregateFailuresTotal.WithLabelValues(op).Inc()
	a.logger.Warn("aggregation failed", "op", op, "failed", ae.Failed)
	return ae
}

// parseCount maps a missing or malformed number to an unknown Count.
func parseCount(n *json.Number) Count {
	if n == nil {
		return Count{}
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return KnownCount(u)
	}
	// float64(math.MaxUint64) is 2^64, which does not fit.
	if f, err := n.Float64(); err == nil && f >= 0 && f < math.MaxUint64 {
		return KnownCount(uint64(f))
	}
	return Count{}
}

// emissionDisplay prefers exact integer division and falls back to
// FormatEmission for non-integer payloads.
func emissionDisplay(n json.Number) (string, error) {
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return clampEmission(strconv.FormatUint(u/atomicPerDisplay, 10)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("coinbase %q: %w", n.String(), err)
	}
	return FormatEmission(f), nil
}

func withQuery(raw, key, value string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
