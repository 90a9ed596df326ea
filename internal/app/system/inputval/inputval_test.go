package inputval

import (
	"errors"
	"testing"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sample struct {
	UserID  string   `json:"userId" validate:"required,objectid"`
	UserIDs []string `json:"userIds" validate:"omitempty,max=3,dive,objectid"`
	Role    string   `json:"role" validate:"max=8"`
}

func TestStruct(t *testing.T) {
	good := primitive.NewObjectID().Hex()
	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{"valid", sample{UserID: good, UserIDs: []string{good}}, ""},
		{"missing", sample{}, "userId is required"},
		{"bad id", sample{UserID: "xyz"}, "userId must be a valid id"},
		{"bad list id", sample{UserID: good, UserIDs: []string{"nope"}}, "userIds[0] must be a valid id"},
		{"too many", sample{UserID: good, UserIDs: []string{good, good, good, good}}, "userIds must be at most 3"},
		{"long role", sample{UserID: good, Role: "abcdefghij"}, "role must be at most 8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q", tt.wantErr)
			}
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("kind = %v, want validation", apperr.KindOf(err))
			}
			var e *apperr.Error
			if !errors.As(err, &e) || e.Message != tt.wantErr {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestObjectIDs(t *testing.T) {
	id := primitive.NewObjectID()
	got, err := ObjectIDs([]string{id.Hex()})
	if err != nil || len(got) != 1 || got[0] != id {
		t.Fatalf("ObjectIDs = %v, %v", got, err)
	}
	if _, err := ObjectIDs([]string{"bad"}); err == nil {
		t.Error("expected error for bad id")
	}
}
