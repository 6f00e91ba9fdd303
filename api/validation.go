package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/warp/sirw-engine/generic"
)

const maxBodyBytes = 1 << 20

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// humanField turns "start_date" into "Start Date".
func humanField(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

func fieldMessage(fe validator.FieldError) string {
	name := humanField(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "datetime":
		return name + " must be a date in YYYY-MM-DD format"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "email":
		return name + " must be a valid e-mail address"
	default:
		return name + " is invalid"
	}
}

// mapValidationError converts validator output into a generic.ValidationError.
func mapValidationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	verr := generic.NewValidationError()
	for _, fe := range errs {
		verr.Add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		verr := generic.NewValidationError()
		verr.Add("body", "must be a valid JSON object: "+err.Error())
		return verr
	}
	if err := h.validate.Struct(dst); err != nil {
		return mapValidationError(err)
	}
	return nil
}

// parseDates parses a validated start/end pair.
func parseDates(start, end string) (generic.TimePoint, generic.TimePoint, error) {
	verr := generic.NewValidationError()
	s, err := generic.ParseDate(start)
	if err != nil {
		verr.Add("start_date", err.Error())
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		verr.Add("end_date", err.Error())
	}
	if err := verr.OrNil(); err != nil {
		return generic.TimePoint{}, generic.TimePoint{}, err
	}
	if e.Before(s) {
		verr.Add("end_date", "End Date must be on or after Start Date")
		return generic.TimePoint{}, generic.TimePoint{}, verr
	}
	return s, e, nil
}
