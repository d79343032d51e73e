package points

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canopy-press/canopy-engagement/internal/domain/shared"
)

func TestApplyFloorsAtZero(t *testing.T) {
	var b Balance

	b = b.Apply(10)
	assert.Equal(t, Balance(10), b)

	b = b.Apply(-25)
	assert.Equal(t, Balance(0), b)
	assert.True(t, b.IsValid())
}

func TestApplyAccumulates(t *testing.T) {
	var b Balance
	for _, d := range []int64{5, 7, -3} {
		b = b.Apply(d)
	}
	assert.Equal(t, int64(9), b.Int64())
}

func TestParseAndFormat(t *testing.T) {
	b, err := Parse("42")
	assert.NoError(t, err)
	assert.Equal(t, Balance(42), b)
	assert.Equal(t, "42", b.Format())

	b, err = Parse("")
	assert.NoError(t, err)
	assert.Equal(t, Balance(0), b)

	_, err = Parse("not-a-number")
	assert.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = Parse("-5")
	assert.ErrorIs(t, err, shared.ErrMalformedAmount)
}
