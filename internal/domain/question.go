package domain

import (
	"strings"
	"time"
)

// QuestionType is the closed set of question variants.
type QuestionType string

const (
	QuestionRadio    QuestionType = "radio"
	QuestionOpenText QuestionType = "open_text"
	QuestionDisplay  QuestionType = "display"
)

// Valid reports whether t is one of the known variants.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionRadio, QuestionOpenText, QuestionDisplay:
		return true
	}
	return false
}

// Option is a selectable value of a radio question.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Question belongs to exactly one question set.
type Question struct {
	ID            string       `json:"id"`
	QuestionSetID string       `json:"question_set_id"`
	Identifier    string       `json:"identifier"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"question_text"`
	Options       []Option     `json:"options"`
	IsRequired    bool         `json:"is_required"`
	OrderIndex    int          `json:"order_index"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NeedsAnswer reports whether completion requires a non-empty response.
func (q Question) NeedsAnswer() bool {
	return q.IsRequired && q.Type != QuestionDisplay
}

// CheckRequired returns a validation error naming the first question that
// needs an answer and has no non-blank value in answers.
func CheckRequired(questions []Question, answers []Answer) error {
	given := make(map[string]bool, len(answers))
	for _, a := range answers {
		if strings.TrimSpace(a.Value) != "" {
			given[a.QuestionID] = true
		}
	}
	for _, q := range questions {
		if q.NeedsAnswer() && !given[q.ID] {
			return Invalidf("Question %q is required", q.Text)
		}
	}
	return nil
}

// Accepts reports whether value is a legal answer for q.
func (q Question) Accepts(value string) bool {
	switch q.Type {
	case QuestionRadio:
		for _, o := range q.Options {
			if o.Value == value {
				return true
			}
		}
		return false
	case QuestionOpenText:
		return true
	}
	return false
}

// Normalize clears fields that make no sense for the variant.
func (q *Question) Normalize() {
	q.Identifier = strings.TrimSpace(q.Identifier)
	if q.Type == QuestionDisplay {
		q.IsRequired = false
	}
	if q.Type != QuestionRadio {
		q.Options = nil
	}
}

// Validate checks the variant invariants of a single question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Identifier) == "" {
		return Invalidf("Question identifier is required")
	}
	if !q.Type.Valid() {
		return Invalidf("Question %q has unknown type %q", q.Identifier, q.Type)
	}
	if strings.TrimSpace(q.Text) == "" {
		return Invalidf("Question %q needs text", q.Identifier)
	}
	if q.Type == QuestionRadio {
		if len(q.Options) == 0 {
			return Invalidf("Radio question %q needs at least one option", q.Identifier)
		}
		seen := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if o.Value == "" {
				return Invalidf("Radio question %q has an option without a value", q.Identifier)
			}
			if _, dup := seen[o.Value]; dup {
				return Invalidf("Radio question %q repeats option %q", q.Identifier, o.Value)
			}
			seen[o.Value] = struct{}{}
		}
	} else if len(q.Options) > 0 {
		return Invalidf("Only radio questions take options (%q is %s)", q.Identifier, q.Type)
	}
	return nil
}

// ValidateQuestions validates every question and identifier uniqueness within the list.
func ValidateQuestions(qs []Question) error {
	seen := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := seen[q.Identifier]; dup {
			return Invalidf("Question identifier %q is used twice", q.Identifier)
		}
		seen[q.Identifier] = struct{}{}
	}
	return nil
}

// QuestionInput is an incoming question from an authoring request. Nil or
// empty fields of an entry that updates a stored question keep the stored value.
type QuestionInput struct {
	ID         string
	Identifier string
	Type       QuestionType
	Text       string
	Options    []Option
	IsRequired *bool
	OrderIndex *int
}

// Build turns in into a question at position pos, starting from base when the
// entry updates an existing question.
func (in QuestionInput) Build(pos int, base *Question) Question {
	var q Question
	if base != nil {
		q = *base
	} else {
		q.IsRequired = true
	}
	if in.Identifier != "" {
		q.Identifier = in.Identifier
	}
	if in.Type != "" {
		q.Type = in.Type
	}
	if in.Text != "" {
		q.Text = in.Text
	}
	if in.Options != nil {
		q.Options = in.Options
	}
	if in.IsRequired != nil {
		q.IsRequired = *in.IsRequired
	}
	q.OrderIndex = pos
	if in.OrderIndex != nil {
		q.OrderIndex = *in.OrderIndex
	}
	q.Normalize()
	return q
}

// QuestionPlan is the reconciliation of a stored question list against an
// incoming one. Update entries carry stored ids; Insert entries have none.
type QuestionPlan struct {
	Delete []string
	Update []Question
	Insert []Question
}

// PlanQuestions reconciles existing against incoming.
func PlanQuestions(existing []Question, incoming []QuestionInput) (QuestionPlan, error) {
	byID := make(map[string]*Question, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}

	var plan QuestionPlan
	keep := make(map[string]struct{}, len(incoming))
	all := make([]Question, 0, len(incoming))
	for i, in := range incoming {
		base, ok := byID[in.ID]
		if in.ID != "" && ok {
			q := in.Build(i, base)
			keep[in.ID] = struct{}{}
			plan.Update = append(plan.Update, q)
			all = append(all, q)
			continue
		}
		q := in.Build(i, nil)
		q.ID = ""
		plan.Insert = append(plan.Insert, q)
		all = append(all, q)
	}
	if err := ValidateQuestions(all); err != nil {
		return QuestionPlan{}, err
	}
	for _, q := range existing {
		if _, ok := keep[q.ID]; !ok {
			plan.Delete = append(plan.Delete, q.ID)
		}
	}
	return plan, nil
}
