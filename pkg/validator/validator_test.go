package validator

import (
	"strings"
	"testing"
)

type samplePayload struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(samplePayload{Email: "user@example.com", Code: "004213"})
	if err != nil {
		t.Fatalf("expected no validation errors, got %v", err)
	}
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(samplePayload{Email: "not-an-email", Code: "12"})
	if err == nil {
		t.Fatal("expected validation errors")
	}

	ve, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(ve) != 2 {
		t.Fatalf("expected two failures, got %d", len(ve))
	}
	if ve[0].Field != "email" {
		t.Fatalf("expected json field name, got %s", ve[0].Field)
	}
	if !strings.Contains(ve.Error(), "code failed on len=6") {
		t.Fatalf("unexpected error string: %s", ve.Error())
	}
}
