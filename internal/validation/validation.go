package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/contactbox/internal/types"
)

// Reasons attached to a ValidationError.
const (
	ReasonEmptyName       = "EmptyName"
	ReasonInvalidEmail    = "InvalidEmail"
	ReasonMessageTooShort = "MessageTooShort"
	ReasonInvalidValue    = "InvalidValue"
	ReasonRequired        = "Required"
	ReasonTooLong         = "TooLong"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Limits bounds the size of submission fields.
type Limits struct {
	NameMax    int
	EmailMax   int
	MessageMin int
	MessageMax int
	TagsMax    int
	TagMax     int
}

// DefaultLimits returns the stock field limits.
func DefaultLimits() Limits {
	return Limits{
		NameMax:    100,
		EmailMax:   100,
		MessageMin: 10,
		MessageMax: 2000,
		TagsMax:    20,
		TagMax:     50,
	}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateSubmission normalizes a raw contact-form post into a Draft.
// Rules run in order and the first failure wins; over-length fields are
// truncated rather than rejected.
func ValidateSubmission(raw types.RawSubmission, limits Limits) (types.Draft, *ValidationError) {
	name := clean(raw.Name)
	email := clean(raw.Email)
	message := clean(raw.Message)

	if err := ValidateRequired("name", name); err != nil {
		err.Reason = ReasonEmptyName
		return types.Draft{}, err
	}
	if err := ValidateEmail("email", email); err != nil {
		return types.Draft{}, err
	}
	if err := ValidateMinLength("message", message, limits.MessageMin); err != nil {
		err.Reason = ReasonMessageTooShort
		return types.Draft{}, err
	}

	return types.Draft{
		Name:    Truncate(name, limits.NameMax),
		Email:   Truncate(email, limits.EmailMax),
		Message: Truncate(message, limits.MessageMax),
	}, nil
}

// ValidateEmail returns an error unless value looks like local@domain.tld.
func ValidateEmail(field, value string) *ValidationError {
	if !emailPattern.MatchString(value) {
		return &ValidationError{
			Field:   field,
			Reason:  ReasonInvalidEmail,
			Message: "must be a valid email address",
		}
	}
	return nil
}

// ValidateMinLength returns an error if the value has fewer than min runes.
func ValidateMinLength(field, value string, min int) *ValidationError {
	if utf8.RuneCountInString(value) < min {
		return &ValidationError{
			Field:   field,
			Reason:  ReasonInvalidValue,
			Message: fmt.Sprintf("must be at least %d characters", min),
		}
	}
	return nil
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Reason:  ReasonInvalidValue,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Reason:  ReasonInvalidValue,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Reason:  ReasonRequired,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Reason:  ReasonInvalidValue,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidatePatch checks every field present in a PATCH body.
func ValidatePatch(p types.SubmissionPatch) []ValidationError {
	var c Collector
	if p.Status == nil && p.Priority == nil && p.Tags == nil {
		c.Add(&ValidationError{
			Field:   "body",
			Reason:  ReasonRequired,
			Message: "at least one of status, priority, tags is required",
		})
		return c.Errors()
	}
	if p.Status != nil {
		c.Add(ValidateEnum("status", *p.Status, types.StatusStrings()))
	}
	if p.Priority != nil {
		c.Add(ValidateEnum("priority", *p.Priority, types.PriorityStrings()))
	}
	if p.Tags != nil {
		for i, tag := range *p.Tags {
			field := fmt.Sprintf("tags[%d]", i)
			c.Add(ValidateUTF8(field, tag))
			c.Add(ValidateNoNullBytes(field, tag))
		}
	}
	return c.Errors()
}

// ValidateBulkRequest checks the ids and action of a bulk request.
func ValidateBulkRequest(req types.BulkRequest, maxIDs int) []ValidationError {
	var c Collector
	if len(req.IDs) == 0 {
		c.Add(&ValidationError{Field: "ids", Reason: ReasonRequired, Message: "is required"})
	} else if len(req.IDs) > maxIDs {
		c.Add(&ValidationError{
			Field:   "ids",
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("exceeds maximum of %d ids", maxIDs),
		})
	}
	c.Add(ValidateEnum("action", req.Action, types.BulkActions))
	return c.Errors()
}

// NormalizeTags trims labels, drops empties and duplicates (first occurrence
// wins), truncates each to tagMax runes and keeps at most maxTags.
func NormalizeTags(tags []string, maxTags, tagMax int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = Truncate(strings.TrimSpace(tag), tagMax)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// Truncate cuts value to at most max runes.
func Truncate(value string, max int) string {
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max])
}

// clean trims whitespace, replaces invalid UTF-8, drops NUL bytes and
// normalizes line endings to \n. CSV readers fold \r\n inside quoted
// fields, so stored text must not carry it.
func clean(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
