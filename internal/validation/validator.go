// Package validation formats go-playground/validator errors the way the
// teacher's utils.ValidateStruct does, for the request bodies the HTTP
// layer accepts.
package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var msgs []string
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		tag := fe.Tag()
		param := fe.Param()

		switch tag {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must have at least "+param+" items")
		case "max":
			msgs = append(msgs, field+" must have at most "+param+" items")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}

	return fmt.Errorf(strings.Join(msgs, ", "))
}
