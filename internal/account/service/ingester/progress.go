package ingester

import (
	"math"
	"math/big"
	"time"
)

type progressSample struct {
	at     time.Time
	height *big.Int
}

// progressReport describes catch-up progress at one sample.
type progressReport struct {
	Processed int
	Height    *big.Int
	Target    *big.Int
	Percent   float64
	ETA       time.Duration
	Known     bool
}

// progressEstimator samples catch-up every `every` blocks and estimates the remaining time
// from the rate observed across the last `window` samples.
type progressEstimator struct {
	every     int
	window    int
	start     *big.Int
	target    *big.Int
	processed int
	samples   []progressSample
}

func newProgressEstimator(start, target *big.Int, every, window int) *progressEstimator {
	if every <= 0 {
		every = progressEvery
	}
	if window < 2 {
		window = 2
	}
	return &progressEstimator{
		every:  every,
		window: window,
		start:  new(big.Int).Set(start),
		target: new(big.Int).Set(target),
	}
}

// observe records that height was processed at now and returns a report every `every` blocks.
func (p *progressEstimator) observe(height *big.Int, now time.Time) (progressReport, bool) {
	p.processed++
	if p.processed%p.every != 0 {
		return progressReport{}, false
	}

	p.samples = append(p.samples, progressSample{at: now, height: new(big.Int).Set(height)})
	if len(p.samples) > p.window {
		p.samples = p.samples[len(p.samples)-p.window:]
	}

	report := progressReport{
		Processed: p.processed,
		Height:    new(big.Int).Set(height),
		Target:    new(big.Int).Set(p.target),
		Percent:   p.percent(height),
	}

	if len(p.samples) < 2 {
		return report, true
	}
	oldest, newest := p.samples[0], p.samples[len(p.samples)-1]
	elapsed := newest.at.Sub(oldest.at)
	blocks := new(big.Int).Sub(newest.height, oldest.height)
	if elapsed <= 0 || blocks.Sign() <= 0 {
		return report, true
	}

	remaining := new(big.Int).Sub(p.target, height)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	perBlock := new(big.Float).Quo(new(big.Float).SetInt64(int64(elapsed)), new(big.Float).SetInt(blocks))
	eta, _ := new(big.Float).Mul(perBlock, new(big.Float).SetInt(remaining)).Float64()
	if eta >= math.MaxInt64 {
		report.ETA = time.Duration(math.MaxInt64)
	} else {
		report.ETA = time.Duration(eta).Round(time.Second)
	}
	report.Known = true
	return report, true
}

func (p *progressEstimator) percent(height *big.Int) float64 {
	total := new(big.Int).Sub(p.target, p.start)
	total.Add(total, big.NewInt(1))
	if total.Sign() <= 0 {
		return 100
	}
	done := new(big.Int).Sub(height, p.start)
	done.Add(done, big.NewInt(1))
	pct, _ := new(big.Float).Quo(new(big.Float).SetInt(done), new(big.Float).SetInt(total)).Float64()
	return pct * 100
}
