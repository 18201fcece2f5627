package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/arqma/arqbot/internal/fetch"
)

// fakeFetcher serves canned bodies per source and counts calls.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
	urls   map[string]string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: make(map[string]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		urls:   make(map[string]string),
	}
}

func (f *fakeFetcher) record(source, u string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source]++
	f.urls[source] = u
	if err, ok := f.errs[source]; ok {
		return "", err
	}
	return f.bodies[source], nil
}

func (f *fakeFetcher) FetchText(_ context.Context, source, u string) (string, error) {
	return f.record(source, u)
}

func (f *fakeFetcher) FetchJSON(_ context.Context, source, u string, v interface{}) error {
	body, err := f.record(source, u)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &fetch.ParseError{Source: source, Err: err}
	}
	return nil
}

func (f *fakeFetcher) callCount(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

const poolPage = `<script>var last_time = "1718900000";</script>`

func newTestAggregator(f fetch.Fetcher) *Aggregator {
	return NewAggregator(f, DefaultEndpoints(), slog.Default())
}

func TestFetchPoolsSorted(t *testing.T) {
	f := newFakeFetcher()
	f.bodies[SourcePoolsPage] = poolPage
	f.bodies[SourcePoolsData] = `{"data":[
		{"pool_id":"small.pool","hashrate":250000},
		{"pool_id":"nohash.pool"},
		{"pool_id":"big.pool","hashrate":3500000},
		{"hashrate":1000000}
	]}`

	pools, err := newTestAggregator(f).FetchPools(context.Background())
	if err != nil {
		t.Fatalf("FetchPools error: %v", err)
	}

	want := []PoolEntry{
		{Name: "big.pool", Hashrate: 3_500_000, HashrateDisplay: "3.50 MH/s"},
		{Name: "Unknown Pool", Hashrate: 1_000_000, HashrateDisplay: "1.00 MH/s"},
		{Name: "small.pool", Hashrate: 250_000, HashrateDisplay: "250.00 KH/s"},
		{Name: "nohash.pool", Hashrate: 0, HashrateDisplay: "0.00 KH/s"},
	}
	if len(pools) != len(want) {
		t.Fatalf("len(pools) = %d, want %d", len(pools), len(want))
	}
	for i := range want {
		if pools[i] != want[i] {
			t.Errorf("pools[%d] = %+v, want %+v", i, pools[i], want[i])
		}
	}

	u, err := url.Parse(f.urls[SourcePoolsData])
	if err != nil {
		t.Fatalf("parse pools data url: %v", err)
	}
	if got := u.Query().Get("t"); got != "1718900000" {
		t.Errorf("t = %q, want %q", got, "1718900000")
	}
}

func TestFetchPoolsStableForTies(t *testing.T) {
	f := newFakeFetcher()
	f.bodies[SourcePoolsPage] = poolPage
	f.bodies[SourcePoolsData] = `{"data":[
		{"pool_id":"a","hashrate":100},
		{"pool_id":"b","hashrate":100},
		{"pool_id":"a","hashrate":100}
	]}`

	pools, err := newTestAggregator(f).FetchPools(context.Background())
	if err != nil {
		t.Fatalf("FetchPools error: %v", err)
	}
	names := []string{pools[0].Name, pools[1].Name, pools[2].Name}
	if strings.Join(names, ",") != "a,b,a" {
		t.Errorf("names = %v, want [a b a]", names)
	}
}

func TestFetchPoolsEmpty(t *testing.T) {
	for _, body := range []string{`{"data":[]}`, `{}`, `{"data":null}`} {
		f := newFakeFetcher()
		f.bodies[SourcePoolsPage] = poolPage
		f.bodies[SourcePoolsData] = body

		pools, err := newTestAggregator(f).FetchPools(context.Background())
		if err != nil {
			t.Fatalf("FetchPools(%s) error: %v", body, err)
		}
		if pools == nil || len(pools) != 0 {
			t.Errorf("FetchPools(%s) = %v, want empty non-nil list", body, pools)
		}
	}
}

func TestFetchPoolsTokenMissingSkipsDataFetch(t *testing.T) {
	f := newFakeFetcher()
	f.bodies[SourcePoolsPage] = `<html>markup changed</html>`
	f.bodies[SourcePoolsData] = `{"data":[]}`

	_, err := newTestAggregator(f).FetchPools(context.Background())
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}
	var ae *AggregateError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %T, want *AggregateError", err)
	}
	if ae.Op != "pools" || len(ae.Failed) != 1 || ae.Failed[0] != SourcePoolsPage {
		t.Errorf("AggregateError = %+v", ae)
	}
	if n := f.callCount(SourcePoolsData); n != 0 {
		t.Errorf("pools data fetched %d times, want 0", n)
	}
}

func TestFetchPoolsPageError(t *testing.T) {
	f := newFakeFetcher()
	f.errs[SourcePoolsPage] = &fetch.StatusError{Source: SourcePoolsPage, StatusCode: 503}

	_, err := newTestAggregator(f).FetchPools(context.Background())
	var serr *fetch.StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want wrapped *fetch.StatusError", err)
	}
	if n := f.callCount(SourcePoolsData); n != 0 {
		t.Errorf("pools data fetched %d times, want 0", n)
	}
}

func TestFetchPoolsDataError(t *testing.T) {
	f := newFakeFetcher()
	f.bodies[SourcePoolsPage] = poolPage
	f.errs[SourcePoolsData] = &fetch.TransportError{Source: SourcePoolsData, Err: errors.New("reset")}

	_, err := newTestAggregator(f).FetchPools(context.Background())
	var ae *AggregateError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AggregateError", err)
	}
	if len(ae.Failed) != 1 || ae.Failed[0] != SourcePoolsData {
		t.Errorf("Failed = %v, want [%s]", ae.Failed, SourcePoolsData)
	}
}

func TestPageFetcherOption(t *testing.T) {
	page := newFakeFetcher()
	page.bodies[SourcePoolsPage] = poolPage
	f := newFakeFetcher()
	f.bodies[SourcePoolsData] = `{"data":[]}`

	a := NewAggregator(f, DefaultEndpoints(), slog.Default(), WithPageFetcher(page))
	if _, err := a.FetchPools(context.Background()); err != nil {
		t.Fatalf("FetchPools error: %v", err)
	}
	if page.callCount(SourcePoolsPage) != 1 || f.callCount(SourcePoolsPage) != 0 {
		t.Errorf("page fetched by page=%d main=%d, want 1/0",
			page.callCount(SourcePoolsPage), f.callCount(SourcePoolsPage))
	}
}

func networkFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.bodies[SourceNetworkInfo] = `{"data":{"height":500000,"hash_rate":5000000,"difficulty":12345},"status":"success"}`
	f.bodies[SourceEmission] = `{"data":{"coinbase":50000000000,"fee":0},"status":"success"}`
	f.bodies[SourcePrice] = `{"success":true,"price":"0.00000500","high":"0.00000520"}`
	return f
}

func TestFetchNetwork(t *testing.T) {
	got, err := newTestAggregator(networkFetcher()).FetchNetwork(context.Background())
	if err != nil {
		t.Fatalf("FetchNetwork error: %v", err)
	}

	want := NetworkStats{
		Network:  NetworkSnapshot{Height: KnownCount(500000), HashrateMHs: 5, Difficulty: KnownCount(12345)},
		Emission: EmissionSnapshot{Display: "500000"},
		Price:    PriceSnapshot{BTC: "0.00000500", Sat: 500},
	}
	if *got != want {
		t.Errorf("FetchNetwork = %+v, want %+v", *got, want)
	}
}

func TestFetchNetworkSentinels(t *testing.T) {
	f := networkFetcher()
	f.bodies[SourceNetworkInfo] = `{"data":{}}`
	f.bodies[SourcePrice] = `{"price":0.00000123}`

	got, err := newTestAggregator(f).FetchNetwork(context.Background())
	if err != nil {
		t.Fatalf("FetchNetwork error: %v", err)
	}
	if got.Network.Height.String() != "N/A" || got.Network.Difficulty.String() != "N/A" {
		t.Errorf("Network = %+v, want N/A sentinels", got.Network)
	}
	if got.Network.HashrateMHs != 0 {
		t.Errorf("HashrateMHs = %v, want 0", got.Network.HashrateMHs)
	}
	if got.Price.Sat != 123 {
		t.Errorf("Price.Sat = %d, want 123", got.Price.Sat)
	}
}

func TestFetchNetworkFailClosed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeFetcher)
		failed string
	}{
		{"network info status", func(f *fakeFetcher) {
			f.errs[SourceNetworkInfo] = &fetch.StatusError{Source: SourceNetworkInfo, StatusCode: 500}
		}, SourceNetworkInfo},
		{"network info without data", func(f *fakeFetcher) {
			f.bodies[SourceNetworkInfo] = `{"status":"fail"}`
		}, SourceNetworkInfo},
		{"emission transport", func(f *fakeFetcher) {
			f.errs[SourceEmission] = &fetch.TransportError{Source: SourceEmission, Err: errors.New("timeout")}
		}, SourceEmission},
		{"emission without coinbase", func(f *fakeFetcher) {
			f.bodies[SourceEmission] = `{"data":{"fee":1}}`
		}, SourceEmission},
		{"price without price", func(f *fakeFetcher) {
			f.bodies[SourcePrice] = `{"success":false,"error":"Invalid market"}`
		}, SourcePrice},
		{"price malformed json", func(f *fakeFetcher) {
			f.bodies[SourcePrice] = `<html>`
		}, SourcePrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := networkFetcher()
			tt.mutate(f)

			got, err := newTestAggregator(f).FetchNetwork(context.Background())
			if got != nil {
				t.Errorf("FetchNetwork = %+v, want nil", got)
			}
			var ae *AggregateError
			if !errors.As(err, &ae) {
				t.Fatalf("err = %v, want *AggregateError", err)
			}
			if ae.Op != "network" || len(ae.Failed) != 1 || ae.Failed[0] != tt.failed {
				t.Errorf("AggregateError = %+v, want Failed [%s]", ae, tt.failed)
			}
			for _, src := range []string{SourceNetworkInfo, SourceEmission, SourcePrice} {
				if n := f.callCount(src); n != 1 {
					t.Errorf("%s fetched %d times, want 1", src, n)
				}
			}
		})
	}
}

func TestFetchNetworkAllFailed(t *testing.T) {
	f := newFakeFetcher()
	for _, src := range []string{SourceNetworkInfo, SourceEmission, SourcePrice} {
		f.errs[src] = &fetch.StatusError{Source: src, StatusCode: 502}
	}

	_, err := newTestAggregator(f).FetchNetwork(context.Background())
	var ae *AggregateError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *AggregateError", err)
	}
	want := []string{SourceNetworkInfo, SourceEmission, SourcePrice}
	if strings.Join(ae.Failed, ",") != strings.Join(want, ",") {
		t.Errorf("Failed = %v, want %v", ae.Failed, want)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		input string
		want  Count
	}{
		{"500000", KnownCount(500000)},
		{"18446744073709551615", KnownCount(18446744073709551615)},
		{"12345.0", KnownCount(12345)},
		{"1.5e3", KnownCount(1500)},
		{"-1", Count{}},
		{"1e30", Count{}},
		{"18446744073709551616.0", Count{}},
		{"abc", Count{}},
	}
	for _, tt := range tests {
		n := json.Number(tt.input)
		if got := parseCount(&n); got != tt.want {
			t.Errorf("parseCount(%s) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
	if got := parseCount(nil); got.Known {
		t.Errorf("parseCount(nil) = %+v, want unknown", got)
	}
}
