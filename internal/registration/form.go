package registration

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"eventpress/internal/model"
	"eventpress/pkg/validator"
)

const (
	maxAnswerLen = 5000

	reasonNoTiers      = "Event has no ticket tiers"
	reasonUnknownTier  = "Unknown ticket tier"
	reasonUnknownField = "Unknown form field"
)

// checkForm matches a submission against the event's registration form.
// It returns the canonical name of the chosen tier, or "" when the event
// sells no tiers.
func checkForm(event *model.Event, sub Submission) (string, error) {
	tier, err := checkTier(event.TicketTiers, sub.TicketType)
	if err != nil {
		return "", err
	}

	var answers map[string]any
	if sub.FormData != nil {
		if err := json.Unmarshal(sub.FormData, &answers); err != nil {
			return "", &ValidationError{Field: "formData", Reason: "must be a JSON object"}
		}
	}
	if err := checkAnswers(event.CustomFields, answers); err != nil {
		return "", err
	}
	return tier, nil
}

// checkTier accepts a tier by name (case-insensitive) or by id.
func checkTier(tiers []model.TicketTier, ticketType string) (string, error) {
	if len(tiers) == 0 {
		if ticketType != "" {
			return "", &ValidationError{Field: "ticketType", Reason: reasonNoTiers}
		}
		return "", nil
	}
	if ticketType == "" {
		return "", &ValidationError{Field: "ticketType", Reason: validator.ErrFieldRequired}
	}
	for _, t := range tiers {
		if strings.EqualFold(t.Name, ticketType) || (t.ID != "" && t.ID == ticketType) {
			return t.Name, nil
		}
	}
	return "", &ValidationError{Field: "ticketType", Reason: reasonUnknownTier}
}

func checkAnswers(fields []model.CustomField, answers map[string]any) error {
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f.ID] = struct{}{}

		v, ok := answers[f.ID]
		if !ok || unanswered(v) {
			if f.Required {
				return &ValidationError{Field: "formData." + f.ID, Reason: validator.ErrFieldRequired}
			}
			continue
		}
		if err := checkAnswer(f, v); err != nil {
			return err
		}
	}

	var unknown []string
	for key := range answers {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ValidationError{Field: "formData." + unknown[0], Reason: reasonUnknownField}
	}
	return nil
}

// unanswered treats an unticked checkbox like an empty text box.
func unanswered(v any) bool {
	switch a := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(a) == ""
	case []any:
		return len(a) == 0
	case bool:
		return !a
	}
	return false
}

func checkAnswer(f model.CustomField, v any) error {
	invalid := &ValidationError{Field: "formData." + f.ID, Reason: validator.ErrInvalidFormat}

	switch f.Type {
	case model.FieldText, model.FieldTextarea:
		s, ok := v.(string)
		if !ok {
			return invalid
		}
		if len(s) > maxAnswerLen {
			return &ValidationError{Field: "formData." + f.ID, Reason: validator.ErrFieldExceedsMaxLen}
		}
	case model.FieldSelect, model.FieldRadio:
		s, ok := v.(string)
		if !ok || !offered(f, s) {
			return invalid
		}
	case model.FieldCheckbox:
		switch a := v.(type) {
		case bool:
		case []any:
			for _, item := range a {
				s, ok := item.(string)
				if !ok || !offered(f, s) {
					return invalid
				}
			}
		default:
			return invalid
		}
	}
	return nil
}

func offered(f model.CustomField, answer string) bool {
	return len(f.Options) == 0 || slices.Contains(f.Options, answer)
}

// checkFormDefinition rejects forms an attendee could not fill in.
func checkFormDefinition(fields []model.CustomField, tiers []model.TicketTier) error {
	ids := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := ids[f.ID]; dup {
			return &ValidationError{Field: "custom_fields", Reason: "Duplicate field id " + f.ID}
		}
		ids[f.ID] = struct{}{}

		if (f.Type == model.FieldSelect || f.Type == model.FieldRadio) && len(f.Options) == 0 {
			return &ValidationError{Field: "custom_fields", Reason: "Field " + f.ID + " needs options"}
		}
	}

	names := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		key := strings.ToLower(t.Name)
		if _, dup := names[key]; dup {
			return &ValidationError{Field: "ticket_tiers", Reason: "Duplicate tier name " + t.Name}
		}
		names[key] = struct{}{}
	}
	return nil
}
