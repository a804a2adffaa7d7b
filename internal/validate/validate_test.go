package validate

import (
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/hitoshi/solidfoundation/internal/model"
)

func TestApply_AllPass(t *testing.T) {
	err := Apply(
		Required("name", "Jane", "required"),
		MaxLen("name", "Jane", 100, "too long"),
	)
	if err != nil {
		t.Errorf("Apply() = %v, want nil", err)
	}
}

func TestApply_CollectsFirstErrorPerField(t *testing.T) {
	err := Apply(
		Required("firstName", "", "First name is required"),
		MinLen("firstName", "", 1, "should not be reported"),
		Email("email", "nope", "Please enter a valid email address"),
	)

	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Apply() = %v, want *model.ValidationError", err)
	}
	want := []model.FieldError{
		{Field: "firstName", Message: "First name is required"},
		{Field: "email", Message: "Please enter a valid email address"},
	}
	if !reflect.DeepEqual(verr.Fields, want) {
		t.Errorf("Fields = %v, want %v", verr.Fields, want)
	}
}

func TestEmail(t *testing.T) {
	valid := []string{"jane@example.com", "j.doe+quote@mail.example.co"}
	invalid := []string{"", "jane", "jane@", "@example.com", "jane@localhost", "Jane <jane@example.com>", "jane@example..com", "jane@.example.com"}

	for _, v := range valid {
		if !Email("email", v, "").Check() {
			t.Errorf("Email(%q) rejected, want accepted", v)
		}
	}
	for _, v := range invalid {
		if Email("email", v, "").Check() {
			t.Errorf("Email(%q) accepted, want rejected", v)
		}
	}
}

func TestMaxLen_CountsRunes(t *testing.T) {
	if !MaxLen("f", "ééé", 3, "").Check() {
		t.Error("3 runes should fit a max of 3")
	}
	if MaxLen("f", "éééé", 3, "").Check() {
		t.Error("4 runes should exceed a max of 3")
	}
}

func TestOneOf(t *testing.T) {
	allowed := []model.ServiceType{model.ServiceTypeResidential, model.ServiceTypeCommercial}
	if !OneOf("serviceType", model.ServiceTypeCommercial, allowed, "").Check() {
		t.Error("commercial should be allowed")
	}
	if OneOf("serviceType", model.ServiceType("garden"), allowed, "").Check() {
		t.Error("garden should not be allowed")
	}
}

func TestWhen(t *testing.T) {
	re := regexp.MustCompile(`^\d+$`)
	if !When(false, Matches("phone", "abc", re, "")).Check() {
		t.Error("When(false) should skip the rule")
	}
	if When(true, Matches("phone", "abc", re, "")).Check() {
		t.Error("When(true) should evaluate the rule")
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		password string
		wantMsg  string
	}{
		{"", "Password is required"},
		{"Ab1!", "Password must be at least 8 characters"},
		{"ABCDEFG1!", "Password must contain at least one lowercase letter"},
		{"abcdefg1!", "Password must contain at least one uppercase letter"},
		{"Abcdefgh!", "Password must contain at least one number"},
		{"Abcdefgh1", "Password must contain at least one special character"},
		{"Abcdefg1!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := Apply(Password("password", tt.password)...)
			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("Apply() = %v, want nil", err)
				}
				return
			}
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Apply() = %v, want *model.ValidationError", err)
			}
			if len(verr.Fields) != 1 || verr.Fields[0].Message != tt.wantMsg {
				t.Errorf("Fields = %v, want single %q", verr.Fields, tt.wantMsg)
			}
		})
	}
}
