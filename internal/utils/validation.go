package contextutils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IsValidEmail checks if an email address is valid using go-playground/validator
func IsValidEmail(email string) bool {
	return validate.Var(email, "email") == nil
}

// IsValidRating reports whether a feedback rating is within the accepted 1-5 range
func IsValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
