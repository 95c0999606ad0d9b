package mq

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRequeue(t *testing.T) {
	assert.True(t, shouldRequeue(assert.AnError), "transient handler failures get another delivery")
	assert.False(t, shouldRequeue(ErrMalformed))
	assert.False(t, shouldRequeue(fmt.Errorf("%w: unexpected end of JSON input", ErrMalformed)),
		"a payload that can never parse must not cycle through the queue forever")
}
