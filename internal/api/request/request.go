// Package request binds and validates HTTP inputs.
package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

var validate = validator.New()

// Query binds the query string into dst and validates it.
func Query(c fiber.Ctx, dst any) error {
	if err := c.Bind().Query(dst); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	return Validate(dst)
}

// Validate checks struct tags and reports every failing field on one line.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s'", e.Field(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", e.Field(), e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
