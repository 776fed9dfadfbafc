package validators

import (
	"testing"

	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
)

type samplePayload struct {
	Event string `json:"event" validate:"required"`
	Count int    `json:"count" validate:"min=1"`
}

func TestDecodeJSONPayload(t *testing.T) {
	var dest samplePayload
	if err := DecodeJSONPayload([]byte(`{"event":"card.new","count":2,"extra":true}`), &dest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dest.Event != "card.new" || dest.Count != 2 {
		t.Fatalf("unexpected payload %+v", dest)
	}
}

func TestDecodeJSONPayloadErrors(t *testing.T) {
	cases := map[string]string{
		"empty":     "  ",
		"malformed": "{",
		"invalid":   `{"count":0}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var dest samplePayload
			err := DecodeJSONPayload([]byte(raw), &dest)
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	err := Struct(&samplePayload{})
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error")
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["event"] != "is required" {
		t.Fatalf("unexpected details %v", details)
	}
	if details["count"] != "must be at least 1" {
		t.Fatalf("unexpected details %v", details)
	}
}
