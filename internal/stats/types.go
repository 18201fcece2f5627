package stats

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PoolEntry is one mining pool as reported by the pool index.
type PoolEntry struct {
	Name            string  `json:"name"`
	Hashrate        float64 `json:"hashrate"`
	HashrateDisplay string  `json:"hashrate_display"`
}

// Count is a non-negative integer that the upstream may omit.
type Count struct {
	N     uint64
	Known bool
}

func KnownCount(n uint64) Count { return Count{N: n, Known: true} }

func (c Count) String() string {
	if !c.Known {
		return "N/A"
	}
	return strconv.FormatUint(c.N, 10)
}

func (c Count) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

type NetworkSnapshot struct {
	Height      Count   `json:"height"`
	HashrateMHs float64 `json:"hashrate_mhs"`
	Difficulty  Count   `json:"difficulty"`
}

type EmissionSnapshot struct {
	Display string `json:"display"`
}

type PriceSnapshot struct {
	BTC string `json:"btc"`
	Sat int64  `json:"sat"`
}

// NetworkStats is only built when every source succeeded.
type NetworkStats struct {
	Network  NetworkSnapshot  `json:"network"`
	Emission EmissionSnapshot `json:"emission"`
	Price    PriceSnapshot    `json:"price"`
}

// AggregateError reports which sources broke during one aggregation run.
type AggregateError struct {
	Op     string
	Failed []string
	Err    error
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("%s: failed sources [%s]: %v", e.Op, strings.Join(e.Failed, ", "), e.Err)
}

func (e *AggregateError) Unwrap() error { return e.Err }

func newAggregateError(op string, failed map[string]error) *AggregateError {
	ae := &AggregateError{Op: op}
	errs := make([]error, 0, len(failed))
	for _, src := range sourceOrder {
		if err, ok := failed[src]; ok {
			ae.Failed = append(ae.Failed, src)
			errs = append(errs, err)
		}
	}
	ae.Err = errors.Join(errs...)
	return ae
}
