package matching

import (
	"math"
	"sort"
	"strings"

	"zahlungsabgleich-backend/internal/models"
)

// ScoredCandidate is one receivable ranked against a transaction. Ephemeral;
// regenerated on every request, never persisted.
type ScoredCandidate struct {
	Receivable models.Receivable `json:"receivable"`
	Score      float64           `json:"score"`
	Reasons    []string          `json:"reasons"`
}

// Score ranks the candidate receivables against one transaction. Candidates
// that pass none of the three filters (amount within tolerance, payer bank
// id match, document number in the payment reference) are not scored.
// The returned ranking is deterministic: ties on score are broken by earlier
// due date, then by lower outstanding amount, then by id.
func (e *Engine) Score(tx *models.Transaction, candidates []models.Receivable) []ScoredCandidate {
	var ranked []ScoredCandidate

	txCents := toCents(tx.Amount)
	reference := normalizeText(tx.Reference)
	counterparty := normalizeText(tx.Counterparty)

	for _, rec := range candidates {
		amountDiff := absInt64(toCents(rec.Outstanding) - txCents)
		amountOK := amountDiff <= e.cfg.AmountToleranceCents
		bankOK := bankIDMatches(rec.PayerBankID, counterparty, reference)
		refOK := referenceContains(reference, rec.Number)
		if !amountOK && !bankOK && !refOK {
			continue
		}

		var raw float64
		var reasons []string

		switch {
		case amountDiff == 0:
			raw += e.cfg.AmountWeight
			reasons = append(reasons, "amount exact")
		case amountOK:
			raw += e.cfg.AmountWeight * 0.6
			reasons = append(reasons, "amount within tolerance")
		}

		if refOK {
			raw += e.cfg.ReferenceWeight
			reasons = append(reasons, "reference contains document number")
		}

		if sim := tokenOverlap(counterparty, normalizeText(rec.PayerName)); sim >= e.cfg.NameSimilarityThreshold {
			raw += e.cfg.NameWeight * sim
			reasons = append(reasons, "counterparty name similar")
		}

		if bankOK {
			raw += e.cfg.BankIDWeight
			reasons = append(reasons, "payer bank id match")
		}

		days := math.Abs(tx.BookedAt.Sub(rec.DueDate).Hours() / 24)
		if days <= float64(e.cfg.DueDateWindowDays) {
			raw += e.cfg.DateWeight
			reasons = append(reasons, "within due-date window")
		}

		score := raw / e.cfg.totalWeight() * 100
		if score > 100 {
			score = 100
		}
		ranked = append(ranked, ScoredCandidate{
			Receivable: rec,
			Score:      score,
			Reasons:    reasons,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		ri, rj := ranked[i].Receivable, ranked[j].Receivable
		if !ri.DueDate.Equal(rj.DueDate) {
			return ri.DueDate.Before(rj.DueDate)
		}
		if ri.Outstanding != rj.Outstanding {
			return ri.Outstanding < rj.Outstanding
		}
		return ri.ID.String() < rj.ID.String()
	})
	return ranked
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// normalizeText uppercases, strips punctuation and collapses whitespace so
// substring and token comparisons are stable across feed formats.
func normalizeText(s string) string {
	s = strings.ToUpper(s)
	for _, r := range []string{".", ",", "-", "/", ":"} {
		s = strings.ReplaceAll(s, r, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// referenceContains reports whether the receivable's document number appears
// in the normalized payment reference. Whitespace inside both is stripped so
// "RE 2024 00123" still matches "RE-2024-00123".
func referenceContains(normalizedRef, number string) bool {
	number = strings.ReplaceAll(normalizeText(number), " ", "")
	if number == "" || normalizedRef == "" {
		return false
	}
	return strings.Contains(strings.ReplaceAll(normalizedRef, " ", ""), number)
}

func bankIDMatches(payerBankID, counterparty, reference string) bool {
	bankID := strings.ReplaceAll(normalizeText(payerBankID), " ", "")
	if bankID == "" {
		return false
	}
	return strings.Contains(strings.ReplaceAll(counterparty, " ", ""), bankID) ||
		strings.Contains(strings.ReplaceAll(reference, " ", ""), bankID)
}

// tokenOverlap is the ratio of payer-name tokens that also appear in the
// counterparty text, case-insensitive.
func tokenOverlap(counterparty, payerName string) float64 {
	nameTokens := strings.Fields(payerName)
	if len(nameTokens) == 0 {
		return 0
	}
	ctpTokens := make(map[string]bool)
	for _, tok := range strings.Fields(counterparty) {
		ctpTokens[tok] = true
	}

	matches := 0
	for _, tok := range nameTokens {
		if ctpTokens[tok] {
			matches++
		}
	}
	return float64(matches) / float64(len(nameTokens))
}
