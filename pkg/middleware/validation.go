package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validateOnce sync.Once

var (
	activityCodeRegex = regexp.MustCompile(`^STAGE[1-9][0-9]*-[A-Z0-9]+$`)
	boxIDRegex        = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
)

// InitValidator registers the custom validators on gin's binding engine
func InitValidator() {
	validateOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		RegisterValidators(v)
	})
}

// RegisterValidators adds the production validators and JSON field naming to v
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("activity_code", validateActivityCode)
	_ = v.RegisterValidation("box_id", validateBoxID)
	_ = v.RegisterValidation("item_result", validateItemResult)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "uri", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
}

func validateActivityCode(fl validator.FieldLevel) bool {
	return activityCodeRegex.MatchString(fl.Field().String())
}

func validateBoxID(fl validator.FieldLevel) bool {
	return boxIDRegex.MatchString(fl.Field().String())
}

func validateItemResult(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "pass", "fail", "n/a":
		return true
	}
	return false
}
