package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

var setupOnce sync.Once

// categoryPattern accepts exam category names such as "Penggalang Ramu" or "siaga-1".
var categoryPattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _-]*$`)

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup; repeated calls are no-ops.
func Setup() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
			// Use JSON tag name for field names in error messages.
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				return name
			})

			_ = v.RegisterValidation("category", func(fl govalidator.FieldLevel) bool {
				return ValidCategory(fl.Field().String())
			})

			enLocale := en.New()
			uni := ut.New(enLocale, enLocale)
			trans, _ = uni.GetTranslator("en")
			_ = en_translations.RegisterDefaultTranslations(v, trans)

			_ = v.RegisterTranslation("category", trans,
				func(u ut.Translator) error {
					return u.Add("category", "{0} must contain only letters, digits, spaces, '-' or '_'", true)
				},
				func(u ut.Translator, fe govalidator.FieldError) string {
					msg, _ := u.T("category", fe.Field())
					return msg
				},
			)
		}
	})
}

// ValidCategory reports whether name is an acceptable exam category.
func ValidCategory(name string) bool {
	return len(name) <= 100 && categoryPattern.MatchString(name)
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name → human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst any) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
