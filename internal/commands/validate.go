package commands

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	titlePattern    = regexp.MustCompile(`^[a-zA-Z0-9_.\-\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// labels name input fields in failure messages
var labels = map[string]string{
	"userId":          "user ID",
	"postId":          "post ID",
	"commentId":       "comment ID",
	"parentCommentId": "comment ID",
	"authorId":        "author ID",
	"voteType":        "vote type",
	"title":           "title",
	"url":             "URL",
	"username":        "username",
	"content":         "content",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("title", func(fl validator.FieldLevel) bool {
		return titlePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// check validates input and returns the first failure as an invalid-input error
func (c *Commands) check(input interface{}) error {
	err := c.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return invalidInput(message(verrs[0]))
}

func message(fe validator.FieldError) string {
	label, ok := labels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "gt", "required", "oneof", "url":
		return "Invalid " + label
	case "min":
		return capitalize(label) + " is too short"
	case "max":
		return capitalize(label) + " is too long"
	case "title", "username":
		return capitalize(label) + " contains invalid characters"
	default:
		return "Invalid " + label
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
