package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	tcases := []struct {
		name string
		err  error
		exp  bool
	}{
		{name: "no rows", err: sql.ErrNoRows, exp: true},
		{name: "wrapped no rows", err: fmt.Errorf("get canvas: %w", sql.ErrNoRows), exp: true},
		{name: "malformed uuid", err: &pq.Error{Code: "22P02"}, exp: true},
		{name: "wrapped malformed uuid", err: fmt.Errorf("get object: %w", &pq.Error{Code: "22P02"}), exp: true},
		{name: "other pq error", err: &pq.Error{Code: "23505"}, exp: false},
		{name: "other error", err: errors.New("connection refused"), exp: false},
		{name: "nil", err: nil, exp: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, IsNotFound(tc.err))
		})
	}
}
