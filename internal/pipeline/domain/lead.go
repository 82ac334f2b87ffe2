package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// LeadPriority ranks how urgently a lead should be worked.
type LeadPriority string

const (
	PriorityLow      LeadPriority = "LOW"
	PriorityMedium   LeadPriority = "MEDIUM"
	PriorityHigh     LeadPriority = "HIGH"
	PriorityVeryHigh LeadPriority = "VERY_HIGH"
)

// LeadSource records where a lead came from.
type LeadSource string

const (
	SourceWebsite     LeadSource = "WEBSITE"
	SourceReferral    LeadSource = "REFERRAL"
	SourceSocialMedia LeadSource = "SOCIAL_MEDIA"
	SourceEvent       LeadSource = "EVENT"
	SourceColdCall    LeadSource = "COLD_CALL"
	SourceWhatsapp    LeadSource = "WHATSAPP"
	SourceOther       LeadSource = "OTHER"
)

// DefaultCurrency is used when a lead is created without one.
const DefaultCurrency = "BRL"

const (
	MinProbability = 0
	MaxProbability = 100
)

var (
	ErrProbabilityOutOfRange = errors.New("probability must be between 0 and 100")
	ErrNegativeValue         = errors.New("value must not be negative")
	ErrLostReasonRequired    = errors.New("lost reason is required")
)

// ValidateProbability checks the 0..100 bound shared by leads and stage defaults.
func ValidateProbability(p int) error {
	if p < MinProbability || p > MaxProbability {
		return ErrProbabilityOutOfRange
	}
	return nil
}

// ValidateAmount rejects negative currency amounts.
func ValidateAmount(v decimal.Decimal) error {
	if v.IsNegative() {
		return ErrNegativeValue
	}
	return nil
}

// NormalizeLostReason trims the reason and rejects blanks.
func NormalizeLostReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", ErrLostReasonRequired
	}
	return trimmed, nil
}

// NormalizeTags trims, drops blanks and removes duplicates while keeping
// the first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := strings.TrimSpace(tag)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// WeightedValue is value * probability / 100, rounded to cents.
func WeightedValue(value decimal.Decimal, probability int) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(int64(probability))).Div(decimal.NewFromInt(100)).Round(2)
}
