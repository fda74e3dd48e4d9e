package repository

import (
	"errors"
	"testing"

	agora_errors "agora-chat/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, agora_errors.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, agora_errors.ErrAlreadyExists},
		{"missing referenced user", &pgconn.PgError{Code: "23503", ConstraintName: "conversation_participants_user_id_fkey"}, agora_errors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tc.err, "op"), tc.want)
		})
	}

	assert.NoError(t, translate(nil, "op"))

	other := errors.New("connection reset")
	got := translate(other, "list messages")
	assert.ErrorIs(t, got, other)
	assert.EqualError(t, got, "list messages: connection reset")
}
