package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/quant/canary"
	"github.com/rustyeddy/quant/feed"
	"github.com/rustyeddy/quant/strategies"
)

// Runner drives a pipeline over a deterministic feed, simulating a
// one-tick holding period: each sized trade is closed at the symbol's
// next tick so the posterior, portfolio, and canary window all learn.
type Runner struct {
	Pipeline *Pipeline
	Feed     feed.Feed
}

// Summary is what a replay run produced.
type Summary struct {
	Ticks      int
	Decisions  int
	Trades     int
	Wins       int
	Losses     int
	Halts      int
	FinalState canary.State
	Start      time.Time
	End        time.Time
}

type openTrade struct {
	direction strategies.Direction
	size      float64
	entry     float64
	openedAt  time.Time
}

// Run consumes the feed to EOF. Any position still open at the end is
// closed at its entry price, flat.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.Pipeline == nil {
		return Summary{}, fmt.Errorf("replay: Pipeline is required")
	}
	if r.Feed == nil {
		return Summary{}, fmt.Errorf("replay: Feed is required")
	}
	defer r.Feed.Close()

	var sum Summary
	open := make(map[string]openTrade)

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		tick, ok, err := r.Feed.Next()
		if err != nil {
			return sum, err
		}
		if !ok {
			break
		}

		sum.Ticks++
		if sum.Start.IsZero() || tick.Time.Before(sum.Start) {
			sum.Start = tick.Time
		}
		if tick.Time.After(sum.End) {
			sum.End = tick.Time
		}

		// Close the previous tick's position at this price first so the
		// portfolio is current before sizing.
		if ot, held := open[tick.Symbol]; held {
			delete(open, tick.Symbol)
			r.close(ot, tick, &sum)
		}

		res, err := r.Pipeline.OnTick(tick, nil)
		if err != nil {
			return sum, err
		}
		if res.Halted {
			sum.Halts++
		}
		if res.ScaledSize > 0 {
			sum.Decisions++
			open[tick.Symbol] = openTrade{
				direction: res.Action.Direction,
				size:      res.ScaledSize,
				entry:     tick.Observation.Price,
				openedAt:  tick.Time,
			}
		}
	}

	// Flatten leftovers without P&L.
	for sym, ot := range open {
		r.Pipeline.OnFill(Fill{
			Symbol:     sym,
			Direction:  ot.direction,
			Size:       0,
			EntryPrice: ot.entry,
			ExitPrice:  ot.entry,
			OpenTime:   ot.openedAt,
			CloseTime:  sum.End,
		})
	}

	sum.FinalState = r.Pipeline.canary.Status().State
	return sum, nil
}

func (r *Runner) close(ot openTrade, tick feed.Tick, sum *Summary) {
	exit := tick.Observation.Price
	ret := 0.0
	if ot.entry > 0 {
		ret = (exit - ot.entry) / ot.entry
	}
	if ot.direction == strategies.Short {
		ret = -ret
	}
	ret *= ot.size // portfolio-fraction return
	pnl := ret * r.Pipeline.Portfolio().Value

	state, _ := r.Pipeline.OnFill(Fill{
		Symbol:     tick.Symbol,
		Direction:  ot.direction,
		Size:       0, // closed out
		EntryPrice: ot.entry,
		ExitPrice:  exit,
		PnL:        pnl,
		Return:     ret,
		OpenTime:   ot.openedAt,
		CloseTime:  tick.Time,
	})
	sum.FinalState = state

	sum.Trades++
	if pnl > 0 {
		sum.Wins++
	} else if pnl < 0 {
		sum.Losses++
	}
}
