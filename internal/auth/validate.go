// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package auth

import (
	"regexp"
	"strings"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

// MaxDisplayNameLength caps the display name.
const MaxDisplayNameLength = 32

// MinPasswordLength is the minimum password length.
const MinPasswordLength = 8

// passwordSpecialChars is the accepted set of special characters,
// enumerated verbatim in validation messages. The trailing space is
// part of the set.
const passwordSpecialChars = `@$!%*?&#()"':;,. `

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	// Permissive local@domain.tld shape. Full RFC 5322 compliance is
	// deliberately not attempted.
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	uppercaseRegex = regexp.MustCompile(`[A-Z]`)
	lowercaseRegex = regexp.MustCompile(`[a-z]`)
	digitRegex     = regexp.MustCompile(`\d`)
)

// RegistrationForm carries the raw registration input.
type RegistrationForm struct {
	TermsAccepted   bool
	DisplayName     string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// ValidateRegistration checks the form against all field rules and
// returns a map of field names to messages, or nil when every rule
// passes. Two preconditions abort early with a single top-level
// message under the "form" key: terms not accepted, and any required
// field left empty. Past those, every field is evaluated independently
// so multiple errors surface together.
func ValidateRegistration(f RegistrationForm) FieldErrors {
	if !f.TermsAccepted {
		return FieldErrors{FormErrorKey: "You must agree to the terms of service."}
	}

	if f.DisplayName == "" || f.Username == "" || f.Email == "" || f.Password == "" || f.ConfirmPassword == "" {
		return FieldErrors{FormErrorKey: "Missing required fields."}
	}

	errs := FieldErrors{}

	if len(f.DisplayName) > MaxDisplayNameLength {
		errs["display_name"] = "Display name must be at most 32 characters long."
	}

	if len(f.Username) < MinUsernameLength || len(f.Username) > MaxUsernameLength || !usernameRegex.MatchString(f.Username) {
		errs["username"] = "Username must be 3-32 characters and contain only letters, numbers, and underscores."
	}

	if !emailRegex.MatchString(f.Email) {
		errs["email"] = "Invalid email address."
	}

	if msg := passwordStrengthMessage(f.Password); msg != "" {
		errs["password"] = msg
	}

	if f.Password != f.ConfirmPassword {
		errs["confirm_password"] = "Passwords do not match."
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// passwordStrengthMessage returns an empty string when the password
// meets every strength rule, otherwise a message enumerating each
// failed rule.
func passwordStrengthMessage(password string) string {
	var missing []string

	if len(password) < MinPasswordLength {
		missing = append(missing, "At least 8 characters long.")
	}
	if !uppercaseRegex.MatchString(password) {
		missing = append(missing, "At least one uppercase letter.")
	}
	if !lowercaseRegex.MatchString(password) {
		missing = append(missing, "At least one lowercase letter.")
	}
	if !digitRegex.MatchString(password) {
		missing = append(missing, "At least one number.")
	}
	if !strings.ContainsAny(password, passwordSpecialChars) {
		missing = append(missing, "At least one special character ("+passwordSpecialChars+").")
	}

	if len(missing) == 0 {
		return ""
	}
	return "Password does not meet security requirements. " + strings.Join(missing, " ")
}
