package offer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOffer(t *testing.T) {
	expires := time.Now().UTC().Add(30 * time.Second)

	o, err := NewOffer("offer-1", "ride-1", "drv-1", 1, expires)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 1, o.BatchNumber)
	assert.Nil(t, o.RespondedAt)
}

func TestNewOffer_Validation(t *testing.T) {
	expires := time.Now().UTC().Add(30 * time.Second)

	_, err := NewOffer("", "ride-1", "drv-1", 1, expires)
	assert.ErrorIs(t, err, ErrOfferIDRequired)

	_, err = NewOffer("offer-1", "", "drv-1", 1, expires)
	assert.ErrorIs(t, err, ErrRideIDRequired)

	_, err = NewOffer("offer-1", "ride-1", "", 1, expires)
	assert.ErrorIs(t, err, ErrDriverIDRequired)

	_, err = NewOffer("offer-1", "ride-1", "drv-1", 0, expires)
	assert.ErrorIs(t, err, ErrBatchOutOfRange)

	_, err = NewOffer("offer-1", "ride-1", "drv-1", 1, time.Now().UTC().Add(-time.Second))
	assert.ErrorIs(t, err, ErrExpiryBeforeCreate)
}

func TestOffer_ExpiredAt(t *testing.T) {
	expires := time.Now().UTC().Add(30 * time.Second)
	o, err := NewOffer("offer-1", "ride-1", "drv-1", 1, expires)
	require.NoError(t, err)

	assert.False(t, o.ExpiredAt(expires.Add(-time.Second)))
	assert.True(t, o.ExpiredAt(expires), "the boundary instant counts as expired")
	assert.True(t, o.ExpiredAt(expires.Add(time.Second)))
}

func TestStatusSettled(t *testing.T) {
	assert.False(t, StatusPending.Settled())
	for _, s := range []Status{StatusAccepted, StatusRejected, StatusExpired, StatusSuperseded} {
		assert.True(t, s.Settled(), "%s must count as settled", s)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" superseded ")
	assert.NoError(t, err)
	assert.Equal(t, StatusSuperseded, s)

	_, err = ParseStatus("MAYBE")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
