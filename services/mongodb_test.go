package services

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestDuplicateField(t *testing.T) {
	dupKey := func(index string) error {
		return mongo.WriteException{WriteErrors: []mongo.WriteError{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: clinic.doctors index: " + index + " dup key: { : \"x\" }",
		}}}
	}

	tests := []struct {
		err  error
		want string
	}{
		{dupKey(indexEmailUnique), "email"},
		{dupKey(indexUsernameUnique), "username"},
		{dupKey(indexLicenseUnique), "licenseNumber"},
		{dupKey(indexEmployeeUnique), "employeeId"},
		{errors.New("E11000 duplicate key error index: username_unique dup key"), "username"},
		{errors.New("E11000 duplicate key error"), "email"},
	}

	for _, tt := range tests {
		if got := duplicateField(tt.err); got != tt.want {
			t.Errorf("duplicateField(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
