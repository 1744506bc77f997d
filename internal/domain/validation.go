package domain

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,20}$`)
	joinCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nicknamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("joincode", func(fl validator.FieldLevel) bool {
		return joinCodePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks struct tags, including the custom nickname and joincode rules.
func Validate(v any) error {
	return validate.Struct(v)
}

// ValidNickname reports whether nickname is 2-20 characters of letters, digits, '_' or '-'.
func ValidNickname(nickname string) bool {
	return nicknamePattern.MatchString(nickname)
}

// ValidJoinCode reports whether code is six upper-case letters or digits.
func ValidJoinCode(code string) bool {
	return joinCodePattern.MatchString(code)
}
