package quota

import "github.com/shopspring/decimal"

// Fixed per-unit rates, in USD.
var (
	// rateTranscriptionPerMinute is charged per minute of source audio.
	rateTranscriptionPerMinute = decimal.RequireFromString("0.006")
	// rateEmbeddingPer1KTokens is charged per 1000 tokens embedded.
	rateEmbeddingPer1KTokens = decimal.RequireFromString("0.0001")
	// rateStoragePerGBMonth is charged per GB stored per month.
	rateStoragePerGBMonth = decimal.RequireFromString("0.023")

	bytesPerGB    = decimal.NewFromInt(1 << 30)
	tokensPerUnit = decimal.NewFromInt(1000)
	centsPerUSD   = decimal.NewFromInt(100)
)

// CostEstimate breaks an estimate down by category, in cents.
type CostEstimate struct {
	TranscriptionCents int64
	EmbeddingCents     int64
	StorageCents       int64
}

// Total returns the sum of all categories in cents.
func (c CostEstimate) Total() int64 {
	return c.TranscriptionCents + c.EmbeddingCents + c.StorageCents
}

// EstimateCost prices the given work against the fixed rate tables.
// Fractional cents round up so estimates never undercharge.
func EstimateCost(durationMinutes float64, tokens int64, storageBytes int64) CostEstimate {
	transcription := decimal.NewFromFloat(durationMinutes).
		Mul(rateTranscriptionPerMinute)
	embedding := decimal.NewFromInt(tokens).
		Div(tokensPerUnit).
		Mul(rateEmbeddingPer1KTokens)
	storage := decimal.NewFromInt(storageBytes).
		Div(bytesPerGB).
		Mul(rateStoragePerGBMonth)

	return CostEstimate{
		TranscriptionCents: toCents(transcription),
		EmbeddingCents:     toCents(embedding),
		StorageCents:       toCents(storage),
	}
}

func toCents(usd decimal.Decimal) int64 {
	return usd.Mul(centsPerUSD).Ceil().IntPart()
}
