package http

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
)

// requestValidator plugs validator/v10 into echo's Context.Validate
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{v: validator.New()}
}

// Validate checks struct tags and reports failures as validation errors
func (r *requestValidator) Validate(i any) error {
	if err := r.v.Struct(i); err != nil {
		var fields []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
		}
		return goerr.Wrap(errors.Join(domain.ErrValidation, err), "invalid request body",
			goerr.V("fields", fields))
	}
	return nil
}
