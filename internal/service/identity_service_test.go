package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ProSessionAcademy/prosessionacademy--sub001/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueGuestRoundTrip(t *testing.T) {
	svc := NewIdentityService(auth.NewAuthenticator("secret", "signalbox", time.Hour), true, discardLogger())

	guest, err := svc.IssueGuest(context.Background(), "Ada")
	require.NoError(t, err)
	assert.True(t, guest.Identity.IsGuest)
	assert.NotEmpty(t, guest.Token)

	id, err := svc.Authenticate(guest.Token)
	require.NoError(t, err)
	assert.Equal(t, guest.Identity.Subject, id.Subject)
	assert.Equal(t, "Ada", id.Name)
	assert.True(t, id.IsGuest)
}

func TestIssueGuestRejections(t *testing.T) {
	authenticator := auth.NewAuthenticator("secret", "signalbox", time.Hour)

	_, err := NewIdentityService(authenticator, false, discardLogger()).IssueGuest(context.Background(), "Ada")
	assert.ErrorIs(t, err, ErrGuestsDisabled)

	svc := NewIdentityService(authenticator, true, discardLogger())
	_, err = svc.IssueGuest(context.Background(), strings.Repeat("a", 256))
	assert.ErrorIs(t, err, ErrGuestNameTooLong)

	_, err = svc.Authenticate("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
