package listing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavitra93/go-apartment-rentals/shared/models"
	"github.com/pavitra93/go-apartment-rentals/shared/rental"
)

// validate reads the same binding tags gin enforces in ShouldBindJSON, so
// requests built in-process get the same checks as HTTP ones.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RequestError wraps a binding or validation failure as ErrInvalidApartment
func RequestError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("%w: %s failed %s=%s", rental.ErrInvalidApartment, fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%w: %s failed %s", rental.ErrInvalidApartment, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", rental.ErrInvalidApartment, err)
}

// normalize trims free-text fields so blank values fail the required rules
func (r *CreateApartmentRequest) normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.SubTitle = strings.TrimSpace(r.SubTitle)
	r.Location = strings.TrimSpace(r.Location)
	r.Images = trimAll(r.Images)
}

func (r *UpdateApartmentRequest) normalize() {
	for _, field := range []*string{r.Title, r.SubTitle, r.Location} {
		if field != nil {
			*field = strings.TrimSpace(*field)
		}
	}
	r.Images = trimAll(r.Images)
}

func trimAll(refs []string) []string {
	if refs == nil {
		return nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = strings.TrimSpace(ref)
	}
	return out
}

func validateCreate(req CreateApartmentRequest) error {
	if err := validate.Struct(req); err != nil {
		return RequestError(err)
	}
	if req.RentalMode == models.RentalModeByRoom && req.TotalRooms == nil {
		return fmt.Errorf("%w: total_rooms is required for by-room apartments", rental.ErrInvalidApartment)
	}
	return nil
}

func validateUpdate(req UpdateApartmentRequest) error {
	if err := validate.Struct(req); err != nil {
		return RequestError(err)
	}
	return nil
}
