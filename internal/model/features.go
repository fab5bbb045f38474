package model

import (
	"math"
	"strings"

	"github.com/fintechco/fraudguard/internal/domain"
)

// featureNames is the fixed feature layout. Order matters: vectors, scaler
// statistics and class centroids all index by position.
var featureNames = []string{
	"hour",
	"day_of_week",
	"is_weekend",
	"is_night",
	"log_amount",
	"amount_rounded",
	"location_length",
	"is_international",
	"merchant_length",
	"merchant_words",
	"is_online",
	"is_gas_station",
	"is_restaurant",
	"is_retail",
}

const featureCount = 14

// featureVector engineers the fixed feature set from one transaction.
func featureVector(tx *domain.Transaction) []float64 {
	v := make([]float64, featureCount)

	hour := float64(tx.Timestamp.Hour())
	weekday := int(tx.Timestamp.Weekday())

	v[0] = hour
	v[1] = float64(weekday)
	if weekday == 0 || weekday == 6 {
		v[2] = 1
	}
	if hour >= 22 || hour <= 6 {
		v[3] = 1
	}

	amount, _ := tx.Amount.Float64()
	v[4] = math.Log1p(amount)
	if tx.Amount.Equal(tx.Amount.Truncate(0)) {
		v[5] = 1
	}

	location := strings.ToUpper(tx.Location)
	v[6] = float64(len(tx.Location))
	if !strings.Contains(location, "US") && !strings.Contains(location, "UNITED STATES") {
		v[7] = 1
	}

	merchant := strings.ToUpper(tx.Merchant)
	v[8] = float64(len(tx.Merchant))
	v[9] = float64(len(strings.Fields(tx.Merchant)))
	if containsAny(merchant, "ONLINE", "WEB", "INTERNET") {
		v[10] = 1
	}
	if containsAny(merchant, "GAS", "FUEL", "SHELL", "EXXON") {
		v[11] = 1
	}
	if containsAny(merchant, "RESTAURANT", "CAFE", "FOOD") {
		v[12] = 1
	}
	if containsAny(merchant, "STORE", "SHOP", "RETAIL", "WALMART", "TARGET") {
		v[13] = 1
	}

	return v
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// scaler holds per-feature standardization statistics fitted at training
// time.
type scaler struct {
	mean   []float64
	stddev []float64
}

func fitScaler(vectors [][]float64) *scaler {
	s := &scaler{
		mean:   make([]float64, featureCount),
		stddev: make([]float64, featureCount),
	}
	n := float64(len(vectors))

	for _, v := range vectors {
		for i, x := range v {
			s.mean[i] += x
		}
	}
	for i := range s.mean {
		s.mean[i] /= n
	}

	for _, v := range vectors {
		for i, x := range v {
			d := x - s.mean[i]
			s.stddev[i] += d * d
		}
	}
	for i := range s.stddev {
		s.stddev[i] = math.Sqrt(s.stddev[i] / n)
		if s.stddev[i] == 0 {
			s.stddev[i] = 1
		}
	}
	return s
}

// transform standardizes a raw feature vector in place-safe fashion.
func (s *scaler) transform(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - s.mean[i]) / s.stddev[i]
	}
	return out
}
