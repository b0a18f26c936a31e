package riskforecast

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/risk-forecast-engine/internal/domain/errors"
	"github.com/davidleathers/risk-forecast-engine/internal/domain/forecast"
)

// Report is the full outcome of one evaluation
type Report struct {
	// Forecasts holds the material forecasts, most probable first.
	Forecasts []forecast.RiskForecast `json:"forecasts"`
	// NotMaterial lists the evaluated domains that produced no forecast,
	// in registration order.
	NotMaterial []forecast.Domain `json:"not_material"`
	Evaluated   int               `json:"evaluated"`
	// Postures holds the trend-free probability of every applicable domain,
	// material or not, in registration order. It is what history records.
	Postures []Posture `json:"-"`
}

// Posture is a domain's probability from the context alone
type Posture struct {
	Domain      forecast.Domain
	Probability float64
}

// Engine runs every registered calculator against a context and ranks the
// results. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	kit         *Toolkit
	logger      *zap.Logger
	parallelism int

	mu          sync.RWMutex
	calculators []Calculator
	index       map[forecast.Domain]int
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	parallelism int
	skipBuiltin bool
	extra       []Calculator
}

// WithParallelism runs up to n calculators concurrently. Values below 2 keep
// evaluation sequential.
func WithParallelism(n int) Option {
	return func(o *engineOptions) { o.parallelism = n }
}

// WithoutBuiltinCalculators starts the engine with an empty registry
func WithoutBuiltinCalculators() Option {
	return func(o *engineOptions) { o.skipBuiltin = true }
}

// WithCalculators registers additional calculators after the built-in ones
func WithCalculators(calculators ...Calculator) Option {
	return func(o *engineOptions) { o.extra = append(o.extra, calculators...) }
}

// NewEngine validates the tables and registers the built-in calculators
func NewEngine(tables Tables, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	kit, err := NewToolkit(tables)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		kit:         kit,
		logger:      logger.Named("riskforecast"),
		parallelism: o.parallelism,
		index:       make(map[forecast.Domain]int),
	}

	var calculators []Calculator
	if !o.skipBuiltin {
		calculators = DefaultCalculators(kit)
	}
	calculators = append(calculators, o.extra...)

	for _, c := range calculators {
		if err := e.Register(c); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Register adds a calculator. Each domain may be registered once.
func (e *Engine) Register(c Calculator) error {
	if c == nil {
		return errors.NewValidationError("INVALID_CALCULATOR", "calculator cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	d := c.Domain()
	if _, exists := e.index[d]; exists {
		return errors.NewValidationError("DUPLICATE_CALCULATOR",
			fmt.Sprintf("a calculator for %s is already registered", d))
	}

	e.index[d] = len(e.calculators)
	e.calculators = append(e.calculators, c)
	e.logger.Debug("calculator registered", zap.String("domain", d.String()))
	return nil
}

// Toolkit returns the shared utilities so custom calculators can be built on
// the same calibration
func (e *Engine) Toolkit() *Toolkit {
	return e.kit
}

// Tables returns a copy of the active calibration
func (e *Engine) Tables() Tables {
	return e.kit.Tables()
}

// Domains returns the registered domains in registration order
func (e *Engine) Domains() []forecast.Domain {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]forecast.Domain, len(e.calculators))
	for i, c := range e.calculators {
		out[i] = c.Domain()
	}
	return out
}

// Forecast returns the material forecasts sorted by probability, highest
// first. Ties keep registration order.
func (e *Engine) Forecast(sc forecast.SignalContext) []forecast.RiskForecast {
	return e.Evaluate(sc).Forecasts
}

// Evaluate runs every calculator and reports both the material forecasts and
// the domains that were not material
func (e *Engine) Evaluate(sc forecast.SignalContext) Report {
	e.mu.RLock()
	calculators := append([]Calculator(nil), e.calculators...)
	e.mu.RUnlock()

	outcomes := make([]outcome, len(calculators))

	if e.parallelism > 1 && len(calculators) > 1 {
		var g errgroup.Group
		g.SetLimit(e.parallelism)
		for i, c := range calculators {
			g.Go(func() error {
				outcomes[i] = e.run(c, sc)
				return nil
			})
		}
		// Calculators cannot fail; Wait only joins the goroutines.
		_ = g.Wait()
	} else {
		for i, c := range calculators {
			outcomes[i] = e.run(c, sc)
		}
	}

	report := Report{
		Forecasts:   make([]forecast.RiskForecast, 0, len(calculators)),
		NotMaterial: make([]forecast.Domain, 0),
		Evaluated:   len(calculators),
		Postures:    make([]Posture, 0, len(calculators)),
	}
	for i, o := range outcomes {
		if o.applies {
			report.Postures = append(report.Postures, Posture{Domain: calculators[i].Domain(), Probability: o.posture})
		}
		if o.material {
			report.Forecasts = append(report.Forecasts, o.forecast)
			continue
		}
		report.NotMaterial = append(report.NotMaterial, calculators[i].Domain())
	}

	sort.SliceStable(report.Forecasts, func(i, j int) bool {
		return report.Forecasts[i].Probability > report.Forecasts[j].Probability
	})

	e.logger.Debug("forecast evaluated",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("material", len(report.Forecasts)),
		zap.Int("not_material", len(report.NotMaterial)),
	)

	return report
}

type outcome struct {
	forecast forecast.RiskForecast
	material bool
	posture  float64
	applies  bool
}

// run evaluates one calculator. Calculators that do not expose an assessment
// only report a posture when they are material.
func (e *Engine) run(c Calculator, sc forecast.SignalContext) outcome {
	f, ok := c.Calculate(sc)
	o := outcome{forecast: f, material: ok}

	if assessor, isAssessor := c.(Assessor); isAssessor {
		if a, applies := assessor.Assess(sc); applies {
			o.posture = e.kit.Posture(sc, a)
			o.applies = true
		}
		return o
	}
	if ok {
		o.posture = f.Probability
		o.applies = true
	}
	return o
}
