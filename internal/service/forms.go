package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	apperrors "github.com/target/storefront-api/internal/errors"
)

// User-facing validation messages.
const (
	MsgRequiredFields   = "Please fill in all required fields"
	MsgInvalidEmail     = "Please enter a valid email address"
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordTooShort = "Password must be at least 6 characters"
	MsgSelectColor      = "Please select color"
	MsgSelectSize       = "Please select size"
	MsgUnknownProduct   = "Unknown product"
)

// LoginForm is the sign-in request body.
type LoginForm struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Credentials converts the form into domain credentials.
func (f LoginForm) Credentials() domainauth.Credentials {
	return domainauth.Credentials{Email: strings.TrimSpace(f.Email), Password: f.Password}
}

// SignUpForm is the registration request body. LastName is optional.
type SignUpForm struct {
	FirstName       string `json:"firstName"       validate:"required"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"           validate:"required,email"`
	Password        string `json:"password"        validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// Input converts the form into a domain sign-up request.
func (f SignUpForm) Input() domainauth.SignUpInput {
	return domainauth.SignUpInput{
		Email:           strings.TrimSpace(f.Email),
		Password:        f.Password,
		ConfirmPassword: f.ConfirmPassword,
		FirstName:       strings.TrimSpace(f.FirstName),
		LastName:        strings.TrimSpace(f.LastName),
	}
}

func signUpFormOf(in domainauth.SignUpInput) SignUpForm {
	return SignUpForm{
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Email:           strings.TrimSpace(in.Email),
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
	}
}

// AddToCartForm is the add-to-cart request body.
type AddToCartForm struct {
	ProductID int64  `json:"productId" validate:"gt=0"`
	Color     string `json:"color"     validate:"required"`
	Size      string `json:"size"      validate:"required"`
}

// rule maps one failed validation tag to a user-facing message. Rules are
// ordered by priority; the first rule matching any failure wins.
type rule struct {
	tag     string
	field   string // empty matches any field
	message string
}

var (
	loginRules = []rule{
		{tag: "required", message: MsgRequiredFields},
		{tag: "email", message: MsgInvalidEmail},
	}
	signUpRules = []rule{
		{tag: "required", message: MsgRequiredFields},
		{tag: "email", message: MsgInvalidEmail},
		{tag: "eqfield", message: MsgPasswordMismatch},
		{tag: "min", message: MsgPasswordTooShort},
	}
	addToCartRules = []rule{
		{tag: "gt", field: "productId", message: MsgUnknownProduct},
		{tag: "required", field: "color", message: MsgSelectColor},
		{tag: "required", field: "size", message: MsgSelectSize},
	}
)

// FormValidator validates request forms and reports the highest-priority
// failure as an apperrors validation error.
type FormValidator struct {
	validate *validator.Validate
}

// NewFormValidator builds a validator that names fields by their json tag.
func NewFormValidator() *FormValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &FormValidator{validate: v}
}

var defaultForms = NewFormValidator()

// ValidateLogin checks a sign-in form.
func (v *FormValidator) ValidateLogin(f LoginForm) error {
	f.Email = strings.TrimSpace(f.Email)
	return v.check(f, loginRules)
}

// ValidateSignUp checks a registration form.
func (v *FormValidator) ValidateSignUp(f SignUpForm) error {
	return v.check(signUpFormOf(f.Input()), signUpRules)
}

// ValidateAddToCart checks an add-to-cart form.
func (v *FormValidator) ValidateAddToCart(f AddToCartForm) error {
	f.Color = strings.TrimSpace(f.Color)
	f.Size = strings.TrimSpace(f.Size)
	return v.check(f, addToCartRules)
}

func (v *FormValidator) check(form any, rules []rule) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "validate form")
	}
	for _, r := range rules {
		for _, fe := range fieldErrs {
			if fe.Tag() == r.tag && (r.field == "" || fe.Field() == r.field) {
				return apperrors.ValidationField(fe.Field(), r.message)
			}
		}
	}
	first := fieldErrs[0]
	return apperrors.ValidationField(first.Field(), first.Field()+" is invalid")
}

func (f AddToCartForm) trimmedColor() string { return strings.TrimSpace(f.Color) }

func (f AddToCartForm) trimmedSize() string { return strings.TrimSpace(f.Size) }

func trimmed(s string) string { return strings.TrimSpace(s) }

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
