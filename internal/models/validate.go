package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report wire names so messages match the JSON document.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks a task against the collection schema.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" && t.Title != "" {
		return fmt.Errorf("task %q: title must not be blank", t.ID)
	}
	return describe(t.ID, validatorInstance().Struct(t))
}

// Validate checks the sync settings ranges.
func (c SyncConfig) Validate() error {
	return describe("", validatorInstance().Struct(c))
}

func describe(id string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "gtefield":
			parts = append(parts, fmt.Sprintf("%s must not be before %s", fe.Field(), lowerFirst(fe.Param())))
		case "unique":
			parts = append(parts, fe.Field()+" must not contain duplicates")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	msg := strings.Join(parts, "; ")
	if id != "" {
		return fmt.Errorf("task %q: %s", id, msg)
	}
	return errors.New(msg)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
