// Package risk scores transactions before any gateway is contacted. The
// assessor accumulates independently weighted factors and derives a risk
// level from the aggregate score; a critical score blocks the transaction.
// Assessment is a pure in-memory computation with no side effects beyond
// the produced record.
package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/payment"
)

// Factor weights. Customer history carries the largest weight because it is
// the strongest fraud signal when a provider is wired in.
const (
	weightAmount   = 0.2
	weightAmountHi = 0.3
	weightMethod   = 0.25
	weightTime     = 0.15
	weightCustomer = 0.3
)

// Amount tier thresholds in minor units.
const (
	amountHighThreshold   = 100_000
	amountMediumThreshold = 50_000
)

// methodBaseScores ranks payment methods by intrinsic risk.
var methodBaseScores = map[payment.Method]float64{
	payment.MethodWallet:     10,
	payment.MethodUPI:        15,
	payment.MethodNetBanking: 20,
	payment.MethodDebitCard:  25,
	payment.MethodCreditCard: 30,
	payment.MethodEMI:        40,
	payment.MethodBNPL:       50,
}

const methodDefaultScore = 30

// CustomerHistoryProvider supplies the customer-history factor. Returning an
// error skips the factor rather than failing the assessment.
type CustomerHistoryProvider interface {
	// Score returns a risk score for the customer's payment history; larger
	// is riskier. The nominal range is 0-100 but providers may exceed it
	// for extreme signals (confirmed fraud, chargeback streaks), which is
	// what pushes an assessment into the critical band.
	Score(ctx context.Context, tenantID, customerID string) (float64, error)
}

// Config tunes the assessor.
type Config struct {
	// BusinessHoursStart/End bound the low-risk window, in hours of the
	// day (UTC). Transactions outside the window score higher.
	BusinessHoursStart int
	BusinessHoursEnd   int
}

// DefaultConfig returns the standard 06:00-22:00 business window.
func DefaultConfig() Config {
	return Config{BusinessHoursStart: 6, BusinessHoursEnd: 22}
}

// Assessor computes risk assessments.
type Assessor struct {
	cfg     Config
	ids     idgen.Generator
	clock   clock.Clock
	history CustomerHistoryProvider
	log     *slog.Logger
}

// New creates an Assessor. history may be nil when no customer data source
// is wired in.
func New(cfg Config, ids idgen.Generator, clk clock.Clock, history CustomerHistoryProvider, log *slog.Logger) *Assessor {
	if log == nil {
		log = slog.Default()
	}
	return &Assessor{
		cfg:     cfg,
		ids:     ids,
		clock:   clk,
		history: history,
		log:     log.With(slog.String("component", "risk-assessor")),
	}
}

// Assess scores the transaction and derives level, block and review flags.
func (a *Assessor) Assess(ctx context.Context, tx payment.Transaction) payment.RiskAssessment {
	now := a.clock.Now()
	factors := []payment.RiskFactor{
		a.amountFactor(tx.Amount),
		a.methodFactor(tx.Method),
		a.timeFactor(now.Hour()),
	}

	if a.history != nil {
		score, err := a.history.Score(ctx, tx.TenantID, tx.CustomerID)
		if err != nil {
			a.log.Warn("customer history unavailable, factor skipped",
				"transaction", tx.ID, "customer", tx.CustomerID, "error", err)
		} else {
			factors = append(factors, payment.RiskFactor{
				Name:      "customer_history",
				Weight:    weightCustomer,
				Score:     score,
				Rationale: "customer transaction history analysis",
			})
		}
	}

	assessment := payment.RiskAssessment{
		ID:            a.ids.NewID(idgen.PrefixRisk),
		TransactionID: tx.ID,
		TenantID:      tx.TenantID,
		CustomerID:    tx.CustomerID,
		Factors:       factors,
		CreatedAt:     now,
	}
	assessment.Score = payment.AggregateScore(factors)
	assessment.Level = payment.LevelForScore(assessment.Score)

	switch assessment.Level {
	case payment.RiskCritical:
		assessment.Blocked = true
		assessment.ManualReview = true
		assessment.FraudIndicators = append(assessment.FraudIndicators, "high risk score")
		assessment.Recommendations = append(assessment.Recommendations,
			"require additional authentication",
			"monitor transaction closely",
			"manual review required")
	case payment.RiskHigh:
		assessment.ManualReview = true
		assessment.Recommendations = append(assessment.Recommendations,
			"require additional authentication",
			"monitor transaction closely")
	}

	a.log.Info("risk assessment completed",
		"transaction", tx.ID,
		"score", assessment.Score,
		"level", string(assessment.Level),
		"blocked", assessment.Blocked)
	return assessment
}

func (a *Assessor) amountFactor(amount int64) payment.RiskFactor {
	switch {
	case amount > amountHighThreshold:
		return payment.RiskFactor{
			Name: "high_amount", Weight: weightAmountHi, Score: 70,
			Rationale: fmt.Sprintf("amount %d exceeds high threshold", amount),
		}
	case amount > amountMediumThreshold:
		return payment.RiskFactor{
			Name: "medium_amount", Weight: weightAmount, Score: 40,
			Rationale: "amount is moderate",
		}
	default:
		return payment.RiskFactor{
			Name: "low_amount", Weight: weightAmount, Score: 10,
			Rationale: "amount is low",
		}
	}
}

func (a *Assessor) methodFactor(method payment.Method) payment.RiskFactor {
	score, ok := methodBaseScores[method]
	if !ok {
		score = methodDefaultScore
	}
	return payment.RiskFactor{
		Name: "payment_method", Weight: weightMethod, Score: score,
		Rationale: fmt.Sprintf("base risk for %s", method),
	}
}

func (a *Assessor) timeFactor(hour int) payment.RiskFactor {
	if hour < a.cfg.BusinessHoursStart || hour >= a.cfg.BusinessHoursEnd {
		return payment.RiskFactor{
			Name: "off_hours", Weight: weightTime, Score: 60,
			Rationale: "transaction outside business hours",
		}
	}
	return payment.RiskFactor{
		Name: "business_hours", Weight: weightTime, Score: 10,
		Rationale: "transaction during business hours",
	}
}
