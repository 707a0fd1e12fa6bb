package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestIsTxnUnsupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			"illegal operation",
			mongo.CommandError{Code: 20, Name: "IllegalOperation",
				Message: "Transaction numbers are only allowed on a replica set member or mongos"},
			true,
		},
		{
			"no such transaction",
			mongo.CommandError{Code: 251, Name: "NoSuchTransaction", Message: "Given transaction number does not match"},
			true,
		},
		{
			"replica set message without code",
			errors.New("Transaction numbers are only allowed on a replica set member or mongos"),
			true,
		},
		{
			"sessions unsupported",
			errors.New("current topology does not support sessions"),
			true,
		},
		{
			"write conflict is transient, not unsupported",
			mongo.CommandError{Code: 112, Name: "WriteConflict", Message: "WriteConflict"},
			false,
		},
		{
			"plain network error",
			errors.New("connection reset by peer"),
			false,
		},
		{
			"nil",
			nil,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTxnUnsupported(tt.err))
		})
	}
}
