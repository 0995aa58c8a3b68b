package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/go-playground/validator/v10"
)

// regexMetacharacters are the characters whose presence marks a keyword pattern as a regex.
const regexMetacharacters = `.*+?^$()[]{}|\`

// DetectRegex reports whether a keyword pattern should be treated as a regular expression.
func DetectRegex(keyword string) bool {
	return strings.ContainsAny(keyword, regexMetacharacters)
}

// NewRule builds an enabled rule, detecting whether the pattern is a regex.
func NewRule(name, keyword string, leadTimeMinutes int, calendarIDs []string, firstEventOfDayOnly bool) model.Rule {
	return model.Rule{
		Name:                name,
		KeywordPattern:      keyword,
		IsRegex:             DetectRegex(keyword),
		CalendarIDs:         calendarIDs,
		LeadTimeMinutes:     leadTimeMinutes,
		Enabled:             true,
		FirstEventOfDayOnly: firstEventOfDayOnly,
		CreatedAt:           time.Now().UTC(),
	}
}

// Validator checks rules against their invariants.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new rule validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateRule ensures a rule has a usable pattern and an in-range lead time.
func (v *Validator) ValidateRule(rule model.Rule) error {
	if strings.TrimSpace(rule.KeywordPattern) == "" {
		return &common.ValidationError{Reason: "empty keyword pattern", Err: common.ErrInvalidRule}
	}

	if err := v.validate.Struct(rule); err != nil {
		return &common.ValidationError{Reason: describeFieldErrors(err), Err: common.ErrInvalidRule}
	}

	if rule.IsRegex {
		if _, err := CompilePattern(rule); err != nil {
			return &common.ValidationError{Reason: fmt.Sprintf("pattern %q does not compile: %v", rule.KeywordPattern, err), Err: common.ErrInvalidRule}
		}
	}

	return nil
}

// CompilePattern compiles a regex rule pattern for case-insensitive matching.
func CompilePattern(rule model.Rule) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + rule.KeywordPattern)
}

func describeFieldErrors(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "LeadTimeMinutes":
			parts = append(parts, fmt.Sprintf("lead time %v outside [%d, %d] minutes",
				fe.Value(), model.MinLeadTimeMinutes, model.MaxLeadTimeMinutes))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
