package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validator "gopkg.in/go-playground/validator.v9"

	"github.com/pidpatrol/pidpatrol/internal/utils"
)

// ValidateStruct uses the `validate` struct tags to do standard validation.
// Field names in the returned error are the YAML keys, dotted for nested
// structs.
func ValidateStruct(confStruct interface{}) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return utils.YAMLNameOfField(field)
	})

	err := validate.Struct(confStruct)
	if err != nil {
		if ves, ok := err.(validator.ValidationErrors); ok {
			var msgs []string
			for _, e := range ves {
				msgs = append(msgs, fmt.Sprintf("Validation error in field '%s': %s", yamlPath(e.Namespace()), describe(e)))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// yamlPath drops the root struct's name from a validator namespace.
func yamlPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	if e.Param() == "" {
		return e.Tag()
	}
	return e.Tag() + "=" + e.Param()
}
