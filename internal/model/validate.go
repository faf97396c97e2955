package model

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var (
	ecrRepoRegex       = regexp.MustCompile(`^[a-z0-9]+(?:[._-][a-z0-9]+)*(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*$`)
	containerNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)
)

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	validate.RegisterValidation("ecr_repo", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) >= 2 && len(s) <= 256 && ecrRepoRegex.MatchString(s)
	})
	validate.RegisterValidation("container_name", func(fl validator.FieldLevel) bool {
		return containerNameRegex.MatchString(fl.Field().String())
	})
}

// ValidationError is a field-level descriptor problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every problem found in one descriptor.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return "invalid descriptor: " + strings.Join(parts, "; ")
}

// Validate checks a descriptor struct against its validate tags.
func Validate(v any) error {
	return toValidationErrors(validate.Struct(v))
}

// Validate checks the registry descriptor.
func (r Repository) Validate() error {
	return Validate(r)
}

// Validate checks the compute descriptor, including the cross-field rules
// that tags cannot express.
func (c Compute) Validate() error {
	var errs ValidationErrors
	if err := Validate(c); err != nil {
		if !errors.As(err, &errs) {
			return err
		}
	}
	s := c.Service
	if s.DesiredCount < s.Scaling.MinCapacity || s.DesiredCount > s.Scaling.MaxCapacity {
		errs = append(errs, ValidationError{
			Field:   "service.desired_count",
			Message: fmt.Sprintf("must be within scaling bounds [%d, %d]", s.Scaling.MinCapacity, s.Scaling.MaxCapacity),
		})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks the container descriptor.
func (c Container) Validate() error {
	return Validate(c)
}

// Validate checks the pipeline descriptor.
func (p Pipeline) Validate() error {
	return Validate(p)
}

func toValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "ltefield":
		return "must be <= " + strings.ToLower(fe.Param())
	case "ltfield":
		return "must be < " + strings.ToLower(fe.Param())
	case "startswith":
		return "must start with " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
