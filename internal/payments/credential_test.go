package payments

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTicketCredential(t *testing.T) {
	key := []byte("test-signing-key")
	ticketID := uuid.New()
	eventID := uuid.New()

	credential, err := BuildTicketCredential(ticketID, eventID, key)
	require.NoError(t, err)

	parsed, err := ParseTicketCredential(credential)
	require.NoError(t, err)
	require.Equal(t, ticketID, parsed)

	require.True(t, VerifyTicketCredential(credential, credential, key))

	t.Run("credentials are unique per activation", func(t *testing.T) {
		again, err := BuildTicketCredential(ticketID, eventID, key)
		require.NoError(t, err)
		require.NotEqual(t, credential, again)
	})

	t.Run("tampered data fails verification", func(t *testing.T) {
		other, err := BuildTicketCredential(uuid.New(), eventID, key)
		require.NoError(t, err)
		require.False(t, VerifyTicketCredential(credential, other, key))
	})

	t.Run("wrong key fails verification", func(t *testing.T) {
		require.False(t, VerifyTicketCredential(credential, credential, []byte("other-key")))
	})

	t.Run("malformed data", func(t *testing.T) {
		_, err := ParseTicketCredential("not-a-credential")
		require.Error(t, err)
		require.False(t, VerifyTicketCredential(credential, "not-a-credential", key))
	})
}
