package sheet

const (
	// MinScore and MaxScore bound a single evaluation score.
	MinScore = 0
	MaxScore = 10
)

// ClampScore forces a raw score into [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Recompute derives every result, subtotal and overall score in place from
// raw scores and the template's current weightages. It is the single source
// of truth for the derivation: result = score × weightage, subtotal = Σ
// results per category, overall = Σ subtotals. Whatever result values a
// caller submitted are overwritten.
//
// A parameter id missing from weightages (the template was edited after the
// sheet was created) contributes weightage 0, so its evaluations score zero
// rather than failing the whole update.
func Recompute(weightages map[string]int, vendors []Vendor) {
	for vi := range vendors {
		vendor := &vendors[vi]
		overall := 0
		for bi := range vendor.Blocks {
			block := &vendor.Blocks[bi]
			subtotal := 0
			for ei := range block.Evaluations {
				eval := &block.Evaluations[ei]
				eval.Score = ClampScore(eval.Score)
				eval.Result = eval.Score * weightages[eval.ParameterID]
				subtotal += eval.Result
			}
			block.Subtotal = subtotal
			overall += subtotal
		}
		vendor.OverallScore = overall
	}
}
