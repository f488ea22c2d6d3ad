package metricool

// EngagementFormula computes a post's engagement rate from its raw metrics
type EngagementFormula interface {
	Rate(raw RawPost) float64
}

// InteractionRatio is the sum of interaction counters over views, as a
// percentage. Zero views yield zero.
type InteractionRatio struct {
	Views        string
	Interactions []string
}

// Rate implements EngagementFormula
func (f InteractionRatio) Rate(raw RawPost) float64 {
	views := numberField(raw, f.Views)
	if views <= 0 {
		return 0
	}

	var total float64
	for _, field := range f.Interactions {
		total += numberField(raw, field)
	}
	return total / views * 100
}

// ReportedEngagement passes through the engagement value the API computed
type ReportedEngagement struct {
	Field string
}

// Rate implements EngagementFormula
func (f ReportedEngagement) Rate(raw RawPost) float64 {
	return numberField(raw, f.Field)
}
