package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	t.Parallel()

	t.Run("creates idle user", func(t *testing.T) {
		t.Parallel()

		user, err := NewUser("U4af4980629deadbeef")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, "U4af4980629deadbeef", user.ExternalID)
		assert.Equal(t, UserStateIdle, user.State)
		assert.False(t, user.CreatedAt.IsZero())
	})

	t.Run("rejects empty external ID", func(t *testing.T) {
		t.Parallel()

		_, err := NewUser("")
		assert.ErrorIs(t, err, ErrEmptyExternalID)
	})
}

func TestUserValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*User)
		wantErr error
	}{
		{
			name:    "valid user",
			mutate:  func(u *User) {},
			wantErr: nil,
		},
		{
			name:    "empty ID",
			mutate:  func(u *User) { u.ID = uuid.Nil },
			wantErr: ErrEmptyUserID,
		},
		{
			name:    "empty external ID",
			mutate:  func(u *User) { u.ExternalID = "" },
			wantErr: ErrEmptyExternalID,
		},
		{
			name:    "invalid state",
			mutate:  func(u *User) { u.State = UserState("banned") },
			wantErr: ErrInvalidUserState,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			user := &User{
				ID:         uuid.New(),
				ExternalID: "U4af4980629deadbeef",
				State:      UserStateIdle,
			}
			tc.mutate(user)

			err := user.Validate()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
