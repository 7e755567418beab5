package strategy

import "math"

// series is a bounded append-only window of float64 samples.
type series struct {
	data  []float64
	limit int
}

func newSeries(limit int) *series {
	return &series{limit: limit}
}

func (s *series) push(v float64) {
	s.data = append(s.data, v)
	if len(s.data) > s.limit {
		s.data = s.data[len(s.data)-s.limit:]
	}
}

func (s *series) len() int {
	return len(s.data)
}

// tail returns the most recent n samples, or fewer when the window is
// still filling.
func (s *series) tail(n int) []float64 {
	if n >= len(s.data) {
		return s.data
	}
	return s.data[len(s.data)-n:]
}

func sma(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

// rollingStd is the sample standard deviation of the window.
func rollingStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := sma(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// bollinger returns the (lower, middle, upper) bands for the window.
func bollinger(xs []float64, width float64) (lower, middle, upper float64) {
	middle = sma(xs)
	sd := rollingStd(xs)
	return middle - width*sd, middle, middle + width*sd
}

// zscore measures how many standard deviations the last sample sits from
// the window mean.
func zscore(xs []float64) float64 {
	sd := rollingStd(xs)
	if sd == 0 {
		return 0
	}
	return (xs[len(xs)-1] - sma(xs)) / sd
}

// rsi is the relative strength index over the window using simple average
// gains and losses.
func rsi(xs []float64) float64 {
	if len(xs) < 2 {
		return 50
	}
	gains, losses := 0.0, 0.0
	for i := 1; i < len(xs); i++ {
		diff := xs[i] - xs[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	if losses == 0 {
		if gains == 0 {
			return 50
		}
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
