package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Title       string `json:"title" validate:"required"`
	Probability int    `json:"probability" validate:"min=0,max=100"`
}

func TestMessagesUseJSONNames(t *testing.T) {
	v := New()
	err := v.Struct(sample{Probability: 101})
	require.Error(t, err)

	msgs := Messages(err)
	assert.Contains(t, msgs, "title: required")
	assert.Contains(t, msgs, "probability: max=100")
}

func TestMessagesNil(t *testing.T) {
	assert.Nil(t, Messages(nil))
}
