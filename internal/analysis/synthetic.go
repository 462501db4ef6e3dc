package analysis

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/types"
)

const (
	// MinTrainingRecords is the smallest real data set worth training on.
	MinTrainingRecords = 10
	// SyntheticSamples is the size of the cold-start data set.
	SyntheticSamples = 100

	syntheticNormalShare = 0.9
	syntheticDaytime     = "2024-01-01 10:00:00"
	syntheticNighttime   = "2024-01-01 02:00:00"
	syntheticDeadline    = "2024-12-31 23:59:59"
)

// GenerateSyntheticBids builds a bimodal cold-start data set: the first 90%
// look like ordinary daytime bids, the rest are cheap, terse, late-night
// submissions. The same seed always yields the same records.
func GenerateSyntheticBids(n int, seed int64) []types.BidRecord {
	rng := rand.New(rand.NewSource(seed))
	uniform := func(lo, hi float64) float64 { return lo + (hi-lo)*rng.Float64() }
	randint := func(lo, hi int) int { return lo + rng.Intn(hi-lo+1) }

	now := time.Now().UTC()
	records := make([]types.BidRecord, 0, n)
	normal := int(float64(n) * syntheticNormalShare)

	for i := 0; i < n; i++ {
		var f types.BidFields
		f.BidID = int64(i)
		f.TenderID = int64(randint(1, 10))
		f.TenderDeadline = syntheticDeadline

		if i < normal {
			f.CompanyName = fmt.Sprintf("Company_%d", i)
			f.BidAmount = types.Float(uniform(10000, 500000))
			f.ProposalText = strings.Repeat("A", randint(100, 1000))
			f.NLPScore = types.Float(uniform(0.4, 0.8))
			f.CreatedAt = syntheticDaytime
		} else {
			f.CompanyName = fmt.Sprintf("SuspiciousCompany_%d", i)
			f.BidAmount = types.Float(uniform(1000, 10000))
			f.ProposalText = "Short proposal"
			f.NLPScore = types.Float(uniform(0.1, 0.3))
			f.CreatedAt = syntheticNighttime
			f.IsSuspicious = true
		}
		f.TenderBudget = types.Float(uniform(50000, 1000000))

		records = append(records, types.NewBidRecord(f, now))
	}

	return records
}
