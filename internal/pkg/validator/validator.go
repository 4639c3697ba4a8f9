package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validations
	registerCustomValidations()
}

func registerCustomValidations() {
	// KYC level validation
	validate.RegisterValidation("kyc_level", func(fl validator.FieldLevel) bool {
		level := fl.Field().String()
		validLevels := []string{"basic", "verified", "business"}
		for _, l := range validLevels {
			if level == l {
				return true
			}
		}
		return false
	})

	// Dispute resolution validation
	validate.RegisterValidation("resolution", func(fl validator.FieldLevel) bool {
		resolution := fl.Field().String()
		validResolutions := []string{"buyer", "seller", "split", "refund"}
		for _, r := range validResolutions {
			if resolution == r {
				return true
			}
		}
		return false
	})

	// Deposit method validation
	validate.RegisterValidation("deposit_method", func(fl validator.FieldLevel) bool {
		method := fl.Field().String()
		validMethods := []string{"card", "bank_transfer", "mobile_money", "manual"}
		for _, m := range validMethods {
			if method == m {
				return true
			}
		}
		return false
	})

	// Wallet PIN validation (4-6 digits)
	validate.RegisterValidation("wallet_pin", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		if len(p) < 4 || len(p) > 6 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid":
			errors[field] = "Invalid identifier format"
		case "kyc_level":
			errors[field] = "Invalid KYC level. Must be: basic, verified, or business"
		case "resolution":
			errors[field] = "Invalid resolution. Must be: buyer, seller, split, or refund"
		case "deposit_method":
			errors[field] = "Invalid deposit method. Must be: card, bank_transfer, mobile_money, or manual"
		case "wallet_pin":
			errors[field] = "PIN must be 4 to 6 digits"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
