package customers

import (
	"math"
	"sort"
	"strings"
)

// Score weights for the engagement ranking.
const (
	responseWeight   = 3.0
	conversionWeight = 5.0
	rateDivisor      = 10.0
	spendDivisor     = 100.0
)

// RankedCustomer pairs a customer with its derived engagement score.
type RankedCustomer struct {
	Customer
	Score float64 `json:"score"`
}

// Engaged reports whether the customer has any engagement signal.
// Spend alone does not qualify.
func Engaged(c Customer) bool {
	return finite(c.ResponseCount) > 0 ||
		finite(c.ConversionCount) > 0 ||
		finite(c.EmailOpenRate) > 0 ||
		finite(c.ClickRate) > 0
}

// Qualifies reports whether the customer is eligible for ranking.
func Qualifies(c Customer) bool {
	return c.HasContact() && Engaged(c)
}

// Score computes the engagement score. Non-finite values count as zero.
func Score(c Customer) float64 {
	return responseWeight*finite(c.ResponseCount) +
		conversionWeight*finite(c.ConversionCount) +
		finite(c.EmailOpenRate)/rateDivisor +
		finite(c.ClickRate)/rateDivisor +
		finite(c.TotalSpent)/spendDivisor
}

// Rank filters to qualifying customers and sorts them by descending score.
// Ties keep input order. Never returns nil.
func Rank(in []Customer) []RankedCustomer {
	out := make([]RankedCustomer, 0, len(in))
	for _, c := range in {
		if !Qualifies(c) {
			continue
		}
		out = append(out, RankedCustomer{Customer: c, Score: Score(c)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// WithEmail keeps ranked customers that have an email address.
func WithEmail(ranked []RankedCustomer) []RankedCustomer {
	out := make([]RankedCustomer, 0, len(ranked))
	for _, rc := range ranked {
		if strings.TrimSpace(rc.Email) != "" {
			out = append(out, rc)
		}
	}
	return out
}

// WithPhone keeps ranked customers that have a phone number.
func WithPhone(ranked []RankedCustomer) []RankedCustomer {
	out := make([]RankedCustomer, 0, len(ranked))
	for _, rc := range ranked {
		if strings.TrimSpace(rc.Phone) != "" {
			out = append(out, rc)
		}
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
