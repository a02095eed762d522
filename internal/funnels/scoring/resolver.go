package scoring

import "leadfunnel_backend/internal/funnels/domain"

type source int

const (
	fromAnswers source = iota
	fromContact
)

type alias struct {
	from source
	key  string
}

// Alias chains per concept. Funnel templates name the same concept
// differently; the first non-empty value wins.
var (
	timelineAliases = []alias{
		{fromAnswers, "timeline"},
		{fromAnswers, "when_looking_to_move"},
		{fromContact, "timeline"},
	}
	financialAliases = []alias{
		{fromAnswers, "pre_approval"},
		{fromAnswers, "payment_method"},
		{fromAnswers, "financing"},
		{fromAnswers, "employment_status"},
	}
	budgetAliases = []alias{
		{fromAnswers, "budget"},
		{fromAnswers, "budget_range"},
		{fromContact, "budget_range"},
	}
	areaAliases = []alias{
		{fromAnswers, "neighborhoods"},
		{fromAnswers, "area_preference"},
		{fromAnswers, "property_address"},
		{fromContact, "area_preference"},
	}
)

// Fields is the resolved view of the scoring-relevant concepts. A nil
// field means the concept is absent.
type Fields struct {
	Timeline  any
	Financial any
	Budget    any
	Area      any
}

// Resolve extracts the scoring concepts from answers and contact data.
func Resolve(answers domain.Answers, contact map[string]any) Fields {
	return Fields{
		Timeline:  resolve(timelineAliases, answers, contact),
		Financial: resolve(financialAliases, answers, contact),
		Budget:    resolve(budgetAliases, answers, contact),
		Area:      resolve(areaAliases, answers, contact),
	}
}

func resolve(chain []alias, answers domain.Answers, contact map[string]any) any {
	for _, a := range chain {
		var v any
		switch a.from {
		case fromAnswers:
			v = answers[a.key]
		case fromContact:
			v = contact[a.key]
		}
		if domain.Present(v) {
			return v
		}
	}
	return nil
}
