package validator

import (
	"context"
	"errors"
	"testing"
)

type sample struct {
	Name  string `json:"name" validate:"required,max=10"`
	Email string `json:"email" validate:"required,email"`
	Slug  string `json:"slug,omitempty" validate:"omitempty,slug"`
	Key   string `json:"-" validate:"omitempty,hexkey"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		in     sample
		field  string
		reason string
	}{
		{"valid", sample{Name: "Ann", Email: "a@x.com", Slug: "go-meetup"}, "", ""},
		{"missing name", sample{Email: "a@x.com"}, "name", ErrFieldRequired},
		{"long name", sample{Name: "abcdefghijk", Email: "a@x.com"}, "name", ErrFieldExceedsMaxLen},
		{"bad email", sample{Name: "Ann", Email: "nope"}, "email", ErrInvalidEmail},
		{"bad slug", sample{Name: "Ann", Email: "a@x.com", Slug: "Go Meetup"}, "slug", ErrInvalidFormat},
		{"bad key", sample{Name: "Ann", Email: "a@x.com", Key: "abc"}, "Key", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(context.Background(), tt.in)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Field != tt.field || fe.Reason != tt.reason {
				t.Errorf("expected %s/%s, got %s/%s", tt.field, tt.reason, fe.Field, fe.Reason)
			}
		})
	}
}

func TestHexKeyRule(t *testing.T) {
	type keyed struct {
		Key string `validate:"hexkey"`
	}
	good := keyed{Key: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"}
	if err := Validate(context.Background(), good); err != nil {
		t.Errorf("expected valid key, got %v", err)
	}
	upper := keyed{Key: "00112233445566778899AABBCCDDEEFF00112233445566778899AABBCCDDEEFF"}
	if err := Validate(context.Background(), upper); err == nil {
		t.Error("expected uppercase key to be rejected")
	}
}
