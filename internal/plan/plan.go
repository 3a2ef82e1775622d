// Package plan computes price ladders and per-level allocations for layered
// and grid order strategies, and executes the resulting plans.
package plan

import (
	"fmt"
	"math"

	"opinion-trader/internal/book"
	"opinion-trader/internal/exchange/opinion"
)

// Cents is a caller-facing price in whole cents: 60 means $0.60. Converting
// to fractional dollars is an exact decimal shift, never rounding.
type Cents int

// Price converts to fractional dollars.
func (c Cents) Price() float64 { return float64(c) / 100 }

// PriceToCents converts an exact-cent fractional price back to cents. The
// rounding only absorbs float representation error (0.07*100 = 7.000...01).
func PriceToCents(p float64) Cents { return Cents(math.Round(p * 100)) }

type PriceMode string

const (
	ModeLevels PriceMode = "levels"       // take prices at order-book depth indices
	ModeRange  PriceMode = "custom_range" // interpolate n levels between two prices
	ModeList   PriceMode = "custom_list"  // use the supplied prices verbatim
)

type Distribution string

const (
	Uniform        Distribution = "uniform"
	Pyramid        Distribution = "pyramid"         // heaviest at the far level
	InversePyramid Distribution = "inverse_pyramid" // heaviest at the first level
	Custom         Distribution = "custom"
)

// InvalidPlanError reports an unbuildable plan request.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string { return "invalid plan: " + e.Reason }

func invalid(format string, args ...any) error {
	return &InvalidPlanError{Reason: fmt.Sprintf(format, args...)}
}

// Plan is an ordered ladder of prices with allocation ratios summing to 1.
type Plan struct {
	Side   opinion.Side
	Prices []float64 // fractional dollars
	Ratios []float64
}

// Request carries the raw inputs for Build. Which fields matter depends on
// PriceMode and Distribution.
type Request struct {
	Side         opinion.Side
	PriceMode    PriceMode
	Distribution Distribution

	// ModeLevels: 1-based depth indices into Book on Side.
	Levels []int
	Book   *book.Snapshot

	// ModeRange: inclusive endpoints and level count.
	RangeStart Cents
	RangeEnd   Cents
	RangeCount int

	// ModeList: explicit ladder, used in the order given.
	Prices []Cents

	// Custom distribution weights, normalized by their sum.
	Weights []float64
}

// Build validates the request and produces a Plan.
func Build(req Request) (Plan, error) {
	prices, err := buildPrices(req)
	if err != nil {
		return Plan{}, err
	}
	if len(prices) == 0 {
		return Plan{}, invalid("empty level set")
	}
	ratios, err := buildRatios(req.Distribution, len(prices), req.Weights)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Side: req.Side, Prices: prices, Ratios: ratios}, nil
}

func buildPrices(req Request) ([]float64, error) {
	switch req.PriceMode {
	case ModeLevels:
		if req.Book == nil {
			return nil, invalid("levels mode requires an order-book snapshot")
		}
		if len(req.Levels) == 0 {
			return nil, invalid("empty level set")
		}
		prices := make([]float64, 0, len(req.Levels))
		for _, lv := range req.Levels {
			if lv < 1 {
				return nil, invalid("level indices are 1-based, got %d", lv)
			}
			p := req.Book.PriceAtLevel(req.Side, lv-1, true)
			if p <= 0 {
				return nil, invalid("no price at %s level %d", req.Side, lv)
			}
			prices = append(prices, p)
		}
		return prices, nil

	case ModeRange:
		if req.RangeCount < 1 {
			return nil, invalid("range count must be at least 1, got %d", req.RangeCount)
		}
		if err := checkCents(req.RangeStart); err != nil {
			return nil, err
		}
		if err := checkCents(req.RangeEnd); err != nil {
			return nil, err
		}
		if req.RangeCount > 1 && req.RangeStart == req.RangeEnd {
			return nil, invalid("range %d..%d is not monotonic over %d levels",
				req.RangeStart, req.RangeEnd, req.RangeCount)
		}
		return interpolate(req.RangeStart.Price(), req.RangeEnd.Price(), req.RangeCount), nil

	case ModeList:
		if len(req.Prices) == 0 {
			return nil, invalid("empty level set")
		}
		prices := make([]float64, 0, len(req.Prices))
		for _, c := range req.Prices {
			if err := checkCents(c); err != nil {
				return nil, err
			}
			prices = append(prices, c.Price())
		}
		return prices, nil

	default:
		return nil, invalid("unknown price mode %q", req.PriceMode)
	}
}

func checkCents(c Cents) error {
	if c < 1 || c > 99 {
		return invalid("price %d¢ outside the valid 1-99¢ band", c)
	}
	return nil
}

// interpolate produces n prices linearly spaced from start to end inclusive.
func interpolate(start, end float64, n int) []float64 {
	if n == 1 {
		return []float64{start}
	}
	prices := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range prices {
		prices[i] = start + step*float64(i)
	}
	prices[n-1] = end // exact endpoint regardless of accumulation error
	return prices
}

func buildRatios(dist Distribution, n int, weights []float64) ([]float64, error) {
	switch dist {
	case Uniform:
		ratios := make([]float64, n)
		for i := range ratios {
			ratios[i] = 1 / float64(n)
		}
		return ratios, nil

	case Pyramid:
		return triangular(n, false), nil

	case InversePyramid:
		return triangular(n, true), nil

	case Custom:
		if len(weights) != n {
			return nil, invalid("%d weights for %d levels", len(weights), n)
		}
		var sum float64
		for _, w := range weights {
			if w <= 0 {
				return nil, invalid("weights must be positive, got %v", w)
			}
			sum += w
		}
		ratios := make([]float64, n)
		for i, w := range weights {
			ratios[i] = w / sum
		}
		return ratios, nil

	default:
		return nil, invalid("unknown distribution %q", dist)
	}
}

// triangular builds weights i/(1+2+...+n): strictly increasing toward the
// far level, or reversed for the inverse pyramid.
func triangular(n int, reversed bool) []float64 {
	total := float64(n*(n+1)) / 2
	ratios := make([]float64, n)
	for i := range ratios {
		w := float64(i + 1)
		if reversed {
			w = float64(n - i)
		}
		ratios[i] = w / total
	}
	return ratios
}
