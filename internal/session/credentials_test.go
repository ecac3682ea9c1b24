package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclosion/backend/internal/crypto"
	"github.com/eclosion/backend/internal/database"
)

func TestCredentialsRoundTrip(t *testing.T) {
	db := database.MustOpenForTest()
	defer db.Close()
	repo := NewRepository(db)
	cipher := crypto.NewCipher("hunter2 but longer")

	configured, err := repo.IsConfigured()
	require.NoError(t, err)
	assert.False(t, configured)

	err = repo.Save(cipher, Credentials{
		Email:     "user@example.com",
		Password:  "s3cret",
		MFASecret: "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)

	configured, err = repo.IsConfigured()
	require.NoError(t, err)
	assert.True(t, configured)

	creds, err := repo.Load(cipher)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "user@example.com", creds.Email)
	assert.Equal(t, "s3cret", creds.Password)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", creds.MFASecret)
	assert.NotEmpty(t, creds.NotesKey, "a notes key is generated on first save")
}

func TestCredentialsWrongPassphrase(t *testing.T) {
	db := database.MustOpenForTest()
	defer db.Close()
	repo := NewRepository(db)

	err := repo.Save(crypto.NewCipher("right"), Credentials{
		Email: "user@example.com", Password: "pw",
	})
	require.NoError(t, err)

	_, err = repo.Load(crypto.NewCipher("wrong"))
	assert.ErrorIs(t, err, crypto.ErrInvalidPassphrase)
}

func TestCredentialsNotConfigured(t *testing.T) {
	db := database.MustOpenForTest()
	defer db.Close()
	repo := NewRepository(db)

	creds, err := repo.Load(crypto.NewCipher("any"))
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestSessionLifecycle(t *testing.T) {
	s := New()
	assert.False(t, s.Active())
	assert.Nil(t, s.Cipher())

	s.Set(&Credentials{Email: "user@example.com"}, "passphrase")
	assert.True(t, s.Active())
	assert.Equal(t, "passphrase", s.Passphrase())
	require.NotNil(t, s.Cipher())

	s.Clear()
	assert.False(t, s.Active())
	assert.Empty(t, s.Passphrase())
}
