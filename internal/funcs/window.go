package funcs

import (
	"math"

	"patterngraph/internal/expr"
	"patterngraph/internal/model"
)

// movingAverage computes the mean of close over the last `period` candles
// ending at and including idx, caching the result on candle idx. Returns
// Undefined if fewer than `period` candles are available — the spec's
// "undefined window" sentinel, never an error.
func movingAverage(view expr.AllStocks, idx, period int) model.Window {
	if period <= 0 {
		return model.Undefined
	}
	if cache := view.CacheAt(idx); cache != nil {
		if cache.MA == nil {
			cache.MA = make(map[int]model.Window, 2)
		}
		if w, ok := cache.MA[period]; ok {
			return w
		}
		w := computeMA(view, idx, period)
		cache.MA[period] = w
		return w
	}
	return computeMA(view, idx, period)
}

func computeMA(view expr.AllStocks, idx, period int) model.Window {
	start := idx - period + 1
	if start < 0 {
		return model.Undefined
	}
	var sum float64
	for i := start; i <= idx; i++ {
		sum += view.At(i).Close
	}
	return model.DefinedWindow(sum / float64(period))
}

func volumeMovingAverage(view expr.AllStocks, idx, period int) model.Window {
	if period <= 0 {
		return model.Undefined
	}
	if cache := view.CacheAt(idx); cache != nil {
		if cache.VolumeMA == nil {
			cache.VolumeMA = make(map[int]model.Window, 2)
		}
		if w, ok := cache.VolumeMA[period]; ok {
			return w
		}
		w := computeVolumeMA(view, idx, period)
		cache.VolumeMA[period] = w
		return w
	}
	return computeVolumeMA(view, idx, period)
}

func computeVolumeMA(view expr.AllStocks, idx, period int) model.Window {
	start := idx - period + 1
	if start < 0 {
		return model.Undefined
	}
	var sum float64
	for i := start; i <= idx; i++ {
		sum += float64(view.At(i).Volume)
	}
	return model.DefinedWindow(sum / float64(period))
}

// stdDevClose computes the population standard deviation of close over the
// last `period` candles ending at idx (inclusive), alongside the mean.
func stdDevClose(view expr.AllStocks, idx, period int) (mean, stddev float64, ok bool) {
	start := idx - period + 1
	if start < 0 || period <= 0 {
		return 0, 0, false
	}
	maw := computeMA(view, idx, period)
	if !maw.Defined {
		return 0, 0, false
	}
	var sumSq float64
	for i := start; i <= idx; i++ {
		d := view.At(i).Close - maw.Value
		sumSq += d * d
	}
	return maw.Value, math.Sqrt(sumSq / float64(period)), true
}

// isNewHigh reports whether current.High >= the max High over the last
// `period` candles strictly before idx. With fewer than `period` prior
// candles available, the spec treats it as "not enough history" — false,
// not an error.
func isNewHigh(view expr.AllStocks, idx, period int) model.Window {
	start := idx - period
	if start < 0 || period <= 0 {
		return model.Undefined
	}
	var maxHigh float64
	for i := start; i < idx; i++ {
		if h := view.At(i).High; h > maxHigh {
			maxHigh = h
		}
	}
	if view.At(idx).High >= maxHigh {
		return model.DefinedWindow(1)
	}
	return model.DefinedWindow(0)
}

func isVolumeHigh(view expr.AllStocks, idx, period int) model.Window {
	start := idx - period
	if start < 0 || period <= 0 {
		return model.Undefined
	}
	var maxVol int64
	for i := start; i < idx; i++ {
		if v := view.At(i).Volume; v > maxVol {
			maxVol = v
		}
	}
	if view.At(idx).Volume >= maxVol {
		return model.DefinedWindow(1)
	}
	return model.DefinedWindow(0)
}

// wilderRSI computes the standard Wilder RSI over close, accumulating from
// the start of the series each call. This mirrors the two-phase
// accumulate-then-smooth shape of a streaming Wilder RSI implementation,
// just re-run over the window ending at idx rather than kept as
// incremental state — correct because RSI(period) at idx is a pure
// function of candles [0..idx] and the cache makes repeat calls for the
// same idx free.
func wilderRSI(view expr.AllStocks, idx, period int) model.Window {
	if period <= 0 || idx < period {
		return model.Undefined
	}
	if cache := view.CacheAt(idx); cache != nil {
		if cache.RSI == nil {
			cache.RSI = make(map[int]model.Window, 2)
		}
		if w, ok := cache.RSI[period]; ok {
			return w
		}
		w := computeWilderRSI(view, idx, period)
		cache.RSI[period] = w
		return w
	}
	return computeWilderRSI(view, idx, period)
}

func computeWilderRSI(view expr.AllStocks, idx, period int) model.Window {
	if idx < period {
		return model.Undefined
	}
	var avgGain, avgLoss float64
	prevClose := view.At(0).Close
	for i := 1; i <= period; i++ {
		delta := view.At(i).Close - prevClose
		prevClose = view.At(i).Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i <= idx; i++ {
		delta := view.At(i).Close - prevClose
		prevClose = view.At(i).Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		p := float64(period)
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return model.DefinedWindow(100)
	}
	rs := avgGain / avgLoss
	return model.DefinedWindow(100 - (100 / (1 + rs)))
}
