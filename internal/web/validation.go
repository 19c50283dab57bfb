// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/authgate/authgate/internal/auth"
)

// maxBodyBytes caps request bodies read by the validator.
const maxBodyBytes = 64 << 10

// SignUpRequest is the sign-up payload.
type SignUpRequest struct {
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=255"`
	Email    string `json:"email" jsonschema:"format=email,maxLength=255"`
	Password string `json:"password" jsonschema:"minLength=6,maxLength=128"`
	Role     string `json:"role,omitempty" jsonschema:"enum=user,enum=admin,default=user"`
}

// SignInRequest is the sign-in payload.
type SignInRequest struct {
	Email    string `json:"email" jsonschema:"format=email"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// FieldError is one validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every field that failed validation.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+": "+d.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// RequestSchemas reflects the JSON Schemas for every request payload, keyed
// by name.
func RequestSchemas() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"sign-up": reflectSchema(&SignUpRequest{}, "sign-up", "Sign-up request"),
		"sign-in": reflectSchema(&SignInRequest{}, "sign-in", "Sign-in request"),
	}
}

// SchemaID returns the $id of the named request schema.
func SchemaID(name string) string {
	return "https://authgate.dev/schemas/" + name + ".json"
}

func reflectSchema(v any, name, title string) *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(v)
	s.ID = jsonschema.ID(SchemaID(name))
	s.Title = title
	return s
}

type normalizer func(map[string]any)

// checker reports failures a schema cannot express.
type checker func(map[string]any) []FieldError

// Validator decodes and validates request payloads. Input is normalized
// before validation: names and emails are trimmed, emails lower-cased and
// a missing role defaults to "user". Sign-up passwords are also limited to
// auth.MaxPasswordBytes bytes.
type Validator struct {
	signUp  *jschema.Schema
	signIn  *jschema.Schema
	printer *message.Printer
}

// NewValidator compiles the request schemas.
func NewValidator() (*Validator, error) {
	schemas := RequestSchemas()
	signUp, err := compileSchema("sign-up", schemas["sign-up"])
	if err != nil {
		return nil, err
	}
	signIn, err := compileSchema("sign-in", schemas["sign-in"])
	if err != nil {
		return nil, err
	}
	return &Validator{signUp: signUp, signIn: signIn, printer: message.NewPrinter(language.English)}, nil
}

func compileSchema(name string, s *jsonschema.Schema) (*jschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	url := SchemaID(name)
	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	return compiled, nil
}

// SignUp decodes a sign-up payload. Invalid input yields *ValidationError.
func (v *Validator) SignUp(body io.Reader) (SignUpRequest, error) {
	var out SignUpRequest
	err := v.decode(body, v.signUp, func(m map[string]any) {
		trimString(m, "name")
		normalizeEmail(m)
		if _, ok := m["role"]; !ok {
			m["role"] = string(auth.DefaultRole)
		}
	}, checkPasswordBytes, &out)
	return out, err
}

// SignIn decodes a sign-in payload. Invalid input yields *ValidationError.
func (v *Validator) SignIn(body io.Reader) (SignInRequest, error) {
	var out SignInRequest
	err := v.decode(body, v.signIn, normalizeEmail, nil, &out)
	return out, err
}

func (v *Validator) decode(body io.Reader, schema *jschema.Schema, normalize normalizer, check checker, out any) error {
	doc, err := jschema.UnmarshalJSON(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return &ValidationError{Details: []FieldError{{Field: "", Message: "request body must be valid JSON"}}}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return &ValidationError{Details: []FieldError{{Field: "", Message: "request body must be a JSON object"}}}
	}

	normalize(obj)

	var details []FieldError
	if err := schema.Validate(obj); err != nil {
		ve, ok := err.(*jschema.ValidationError) //nolint:errorlint // Validate returns the concrete type
		if !ok {
			return oops.Code("VALIDATION_FAILED").Wrap(err)
		}
		details = v.fieldErrors(ve)
	}
	if check != nil {
		for _, fe := range check(obj) {
			if !hasField(details, fe.Field) {
				details = append(details, fe)
			}
		}
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return oops.Code("VALIDATION_FAILED").With("operation", "re-encode payload").Wrap(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return oops.Code("VALIDATION_FAILED").With("operation", "decode payload").Wrap(err)
	}
	return nil
}

func (v *Validator) fieldErrors(ve *jschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(e *jschema.ValidationError)
	walk = func(e *jschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		field := strings.Join(e.InstanceLocation, ".")
		if req, ok := e.ErrorKind.(*kind.Required); ok {
			for _, missing := range req.Missing {
				out = append(out, FieldError{Field: joinField(field, missing), Message: "is required"})
			}
			return
		}
		out = append(out, FieldError{Field: field, Message: v.describe(e.ErrorKind)})
	}
	walk(ve)
	return out
}

func (v *Validator) describe(k jschema.ErrorKind) string {
	switch k := k.(type) {
	case *kind.MinLength:
		if k.Want == 1 {
			return "must not be empty"
		}
		return fmt.Sprintf("must be at least %d characters", k.Want)
	case *kind.MaxLength:
		return fmt.Sprintf("must be at most %d characters", k.Want)
	case *kind.Format:
		if k.Want == "email" {
			return "must be a valid email address"
		}
	case *kind.Enum:
		want := make([]string, 0, len(k.Want))
		for _, w := range k.Want {
			want = append(want, fmt.Sprint(w))
		}
		return "must be one of: " + strings.Join(want, ", ")
	case *kind.Type:
		return "must be of type " + strings.Join(k.Want, " or ")
	}
	return k.LocalizedString(v.printer)
}

func checkPasswordBytes(m map[string]any) []FieldError {
	if s, ok := m["password"].(string); ok && len(s) > auth.MaxPasswordBytes {
		return []FieldError{passwordTooLong()}
	}
	return nil
}

func passwordTooLong() FieldError {
	return FieldError{
		Field:   "password",
		Message: fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes),
	}
}

func hasField(details []FieldError, field string) bool {
	for _, d := range details {
		if d.Field == field {
			return true
		}
	}
	return false
}

func joinField(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func trimString(m map[string]any, key string) {
	if s, ok := m[key].(string); ok {
		m[key] = strings.TrimSpace(s)
	}
}

func normalizeEmail(m map[string]any) {
	if s, ok := m["email"].(string); ok {
		m["email"] = strings.ToLower(strings.TrimSpace(s))
	}
}
