package detect

import (
	"context"
	"sync"
	"testing"

	"patterngraph/internal/funcs"
	"patterngraph/internal/model"
)

func TestRunMultiTicker_FansInAllTickersToOneSink(t *testing.T) {
	g := mustLoad(t, s1Doc)
	reg := funcs.NewRegistry()

	sources := map[string]model.Series{
		"AAA": {
			{Ticker: "AAA", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
			{Ticker: "AAA", Date: day(3), Open: 10900, High: 10950, Low: 8700, Close: 8800, Volume: 800000},
		},
		"BBB": {
			{Ticker: "BBB", Date: day(2), Open: 10000, High: 10300, Low: 9900, Close: 10200, Volume: 1500000},
			{Ticker: "BBB", Date: day(3), Open: 10900, High: 10950, Low: 8700, Close: 8800, Volume: 800000},
		},
	}

	var mu sync.Mutex
	seen := map[string]int{}
	sink := func(p *model.Pattern) error {
		mu.Lock()
		seen[p.Ticker]++
		mu.Unlock()
		return nil
	}

	if err := RunMultiTicker(context.Background(), g, reg, nil, sources, sink); err != nil {
		t.Fatalf("RunMultiTicker: %v", err)
	}

	if seen["AAA"] != 1 || seen["BBB"] != 1 {
		t.Fatalf("expected exactly 1 pattern per ticker, got %v", seen)
	}
}
