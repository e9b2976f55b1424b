package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(&Login{Username: "ana", Password: "secret"}))

	err := Validate(&Register{Username: "ana", Password: "123"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Password", ve.Field)
	assert.Equal(t, "min", ve.Rule)

	bad := "not a url"
	err = Validate(&PostUpdate{ImageURL: &bad})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ImageURL", ve.Field)

	zero := 0
	err = Validate(&PostUpdate{MaxRetryAttempts: &zero})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "MaxRetryAttempts", ve.Field)
}
