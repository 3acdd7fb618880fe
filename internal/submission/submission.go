package submission

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/opaline-simulator/internal/pricing"
)

// Input defaults offered by the simulator form.
const (
	DefaultMonthlyClientCount = 50
	DefaultKitCount1Person    = 100
	DefaultKitCount2Person    = 50
)

// Input carries the raw values entered by the user. Counts are capped at
// pricing.MaxKitCount.
type Input struct {
	ContactName        string `json:"contactName" validate:"required"`
	ContactSurname     string `json:"contactSurname" validate:"required"`
	ContactEmail       string `json:"contactEmail" validate:"required"`
	MonthlyClientCount int    `json:"monthlyClientCount" validate:"min=1,max=1000000"`
	KitCount1Person    int    `json:"kitCount1Person" validate:"min=0,max=1000000"`
	KitCount2Person    int    `json:"kitCount2Person" validate:"min=0,max=1000000"`
}

// ValidationError lists the input fields that failed validation.
type ValidationError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "submission: invalid input"
	}
	return "submission: invalid fields: " + strings.Join(e.Fields, ", ")
}

var countFields = map[string]bool{
	"monthlyClientCount": true,
	"kitCount1Person":    true,
	"kitCount2Person":    true,
}

// OnlyCounts reports whether every failing field is a numeric count.
func (e *ValidationError) OnlyCounts() bool {
	if e == nil || len(e.Fields) == 0 {
		return false
	}
	for _, f := range e.Fields {
		if !countFields[f] {
			return false
		}
	}
	return true
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

// Normalize trims surrounding whitespace from the identity fields.
func (in Input) Normalize() Input {
	in.ContactName = strings.TrimSpace(in.ContactName)
	in.ContactSurname = strings.TrimSpace(in.ContactSurname)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	return in
}

// Validate checks the normalised input. It returns a *ValidationError naming every offending field.
func (in Input) Validate() error {
	err := validate.Struct(in.Normalize())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("submission: validate: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	sort.Strings(fields)
	return &ValidationError{Fields: fields}
}

// Submission is a validated request with its derived amounts. It has no
// mutators; the derived amounts are computed once in New.
type Submission struct {
	id        uuid.UUID
	timestamp time.Time
	input     Input
	pricing   pricing.Result
}

// New validates the input, stamps it with the provided time and computes the amounts.
func New(in Input, at time.Time, cfg pricing.Config) (*Submission, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &Submission{
		id:        uuid.New(),
		timestamp: at,
		input:     in,
		pricing:   pricing.Compute(in.KitCount1Person, in.KitCount2Person, cfg),
	}, nil
}

// ID returns the submission identifier. The accessors below it expose the
// normalised input and the amounts computed by New; none of them mutate s.
func (s *Submission) ID() uuid.UUID           { return s.id }
func (s *Submission) Timestamp() time.Time    { return s.timestamp }
func (s *Submission) ContactName() string     { return s.input.ContactName }
func (s *Submission) ContactSurname() string  { return s.input.ContactSurname }
func (s *Submission) ContactEmail() string    { return s.input.ContactEmail }
func (s *Submission) MonthlyClientCount() int { return s.input.MonthlyClientCount }
func (s *Submission) KitCount1Person() int    { return s.input.KitCount1Person }
func (s *Submission) KitCount2Person() int    { return s.input.KitCount2Person }
func (s *Submission) Pricing() pricing.Result { return s.pricing }
func (s *Submission) Input() Input            { return s.input }
