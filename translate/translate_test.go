package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(SetLanguage("en-US"))
	assert.Equal("line 3 bad", From("line %d %v", 3, "bad"))
}

func TestSetLanguage_Invalid(t *testing.T) {
	assert := assert.New(t)

	assert.Error(SetLanguage("!!"))
	assert.Equal("ok", From("ok"))
}
