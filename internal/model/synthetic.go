package model

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintechco/fraudguard/internal/domain"
)

var (
	fraudMerchants = []string{"UNKNOWN MERCHANT", "CASH ADVANCE", "ATM WITHDRAWAL"}
	fraudLocations = []string{"Unknown Location", "High Risk Country", "Offshore"}
	fraudHours     = []int{2, 3, 4, 23}

	legitMerchants = []string{"GROCERY STORE", "GAS STATION", "RESTAURANT", "RETAIL STORE"}
	legitLocations = []string{"New York, US", "Los Angeles, US", "Chicago, US"}
)

// GenerateSyntheticData produces labeled training samples with a 10% fraud
// rate. Fraudulent samples skew toward high amounts, night hours and risky
// merchants; legitimate samples follow everyday spending patterns.
func GenerateSyntheticData(n int, seed int64) []LabeledTransaction {
	rng := rand.New(rand.NewSource(seed))
	now := time.Now().UTC()

	samples := make([]LabeledTransaction, 0, n)
	for i := 0; i < n; i++ {
		isFraud := rng.Float64() < 0.1

		var amount float64
		var hour int
		var merchant, location string
		if isFraud {
			amount = math.Exp(rng.NormFloat64()*2 + 8)
			hour = fraudHours[rng.Intn(len(fraudHours))]
			merchant = fraudMerchants[rng.Intn(len(fraudMerchants))]
			location = fraudLocations[rng.Intn(len(fraudLocations))]
		} else {
			amount = math.Exp(rng.NormFloat64()*1.5 + 4)
			hour = 6 + rng.Intn(17)
			merchant = legitMerchants[rng.Intn(len(legitMerchants))]
			location = legitLocations[rng.Intn(len(legitLocations))]
		}

		ts := time.Date(now.Year(), now.Month(), now.Day(),
			hour, rng.Intn(60), rng.Intn(60), 0, time.UTC)

		samples = append(samples, LabeledTransaction{
			Transaction: &domain.Transaction{
				ID:         fmt.Sprintf("TXN_%06d", i),
				Amount:     decimal.NewFromFloat(amount).Round(2),
				Merchant:   merchant,
				Location:   location,
				Timestamp:  ts,
				CardNumber: fmt.Sprintf("****%04d", 1000+rng.Intn(9000)),
				Currency:   "USD",
			},
			IsFraud: isFraud,
		})
	}
	return samples
}
