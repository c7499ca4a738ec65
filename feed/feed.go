// Package feed supplies market ticks to the pipeline, currently from
// canonical CSV datasets used by the replay command.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/quant/regime"
)

// Tick is one market snapshot: the filter observation plus the venue
// conditions the execution router needs.
type Tick struct {
	Time        time.Time
	Symbol      string
	Observation regime.Observation
	DepthUSD    float64
	Tier        int
}

// Feed yields ticks one at a time. Implementations should be
// deterministic and return (ok=false, err=nil) at EOF.
type Feed interface {
	Next() (t Tick, ok bool, err error)
	Close() error
}

// CSVFeed reads canonical tick CSV rows:
//
//	time,symbol,price,volume,spread,imbalance,funding,gas,social,depth_usd,tier
//
// where time is RFC3339 or RFC3339Nano. It optionally filters ticks to
// [From, To) if provided. A header row ("time,...") is allowed, and
// empty or short rows are skipped.
type CSVFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
}

func NewCSVFeed(path string, from, to time.Time) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	return &CSVFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVFeed) Next() (Tick, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return Tick{}, false, nil
		}
		if err != nil {
			return Tick{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		t, ok, err := parseTickRow(row)
		if err != nil {
			return Tick{}, false, err
		}
		if !ok {
			continue
		}
		if !inRange(t.Time, f.from, f.to) {
			continue
		}
		return t, true, nil
	}
}

func parseTickRow(row []string) (Tick, bool, error) {
	// Need at least: time,symbol,price,volume,spread,imbalance,funding,gas,social
	if len(row) < 9 {
		return Tick{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return Tick{}, false, nil
	}
	// RFC3339 parsing also accepts fractional seconds.
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad time %q: %w", ts, err)
	}

	symbol := strings.TrimSpace(row[1])
	if symbol == "" {
		return Tick{}, false, nil
	}

	vals := make([]float64, 7)
	names := []string{"price", "volume", "spread", "imbalance", "funding", "gas", "social"}
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		if err != nil {
			return Tick{}, false, fmt.Errorf("bad %s %q: %w", names[i], row[2+i], err)
		}
		vals[i] = v
	}

	tick := Tick{
		Time:   t,
		Symbol: symbol,
		Observation: regime.Observation{
			Price:          vals[0],
			Volume:         vals[1],
			Spread:         vals[2],
			Imbalance:      vals[3],
			FundingRate:    vals[4],
			GasPrice:       vals[5],
			SocialMentions: vals[6],
		},
		Tier: 3, // assume thin unless the dataset says otherwise
	}

	if len(row) > 9 {
		if d, err := strconv.ParseFloat(strings.TrimSpace(row[9]), 64); err == nil {
			tick.DepthUSD = d
		}
	}
	if len(row) > 10 {
		if tier, err := strconv.Atoi(strings.TrimSpace(row[10])); err == nil {
			tick.Tier = tier
		}
	}

	return tick, true, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
