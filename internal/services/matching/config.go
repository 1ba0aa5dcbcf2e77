package matching

// Config holds the score weights, thresholds and tolerance bands of the
// matching engine. It is passed in explicitly so tests run against fixed
// configurations.
type Config struct {
	// Weights per signal. The total score is normalized against their sum.
	AmountWeight    float64
	ReferenceWeight float64
	NameWeight      float64
	BankIDWeight    float64
	DateWeight      float64

	// AmountToleranceCents is the band around the transaction amount inside
	// which a receivable still counts as an amount candidate. Absorbs
	// rounding and fee deltas.
	AmountToleranceCents int64

	// AutoAssignThreshold is the normalized score at or above which a single
	// unambiguous candidate is assigned automatically.
	AutoAssignThreshold float64
	// SuggestionFloor is the minimum normalized score for a candidate to be
	// surfaced as a suggestion at all.
	SuggestionFloor float64

	// NameSimilarityThreshold is the minimum token-overlap ratio for the
	// counterparty-name signal to contribute.
	NameSimilarityThreshold float64
	// DueDateWindowDays is the window around the receivable's due date inside
	// which the temporal-proximity signal contributes.
	DueDateWindowDays int

	// BatchWorkers bounds the parallelism of the scoring phase in AutoMatch.
	BatchWorkers int
}

func DefaultConfig() Config {
	return Config{
		AmountWeight:    40,
		ReferenceWeight: 30,
		NameWeight:      15,
		BankIDWeight:    10,
		DateWeight:      5,

		AmountToleranceCents: 100,

		AutoAssignThreshold: 70,
		SuggestionFloor:     35,

		NameSimilarityThreshold: 0.5,
		DueDateWindowDays:       30,

		BatchWorkers: 4,
	}
}

func (c Config) totalWeight() float64 {
	return c.AmountWeight + c.ReferenceWeight + c.NameWeight + c.BankIDWeight + c.DateWeight
}
