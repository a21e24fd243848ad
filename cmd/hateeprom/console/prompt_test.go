package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		response string
		expected string
	}{
		{"", No},
		{"y", Yes},
		{" Y ", Yes},
		{"n", No},
		{"maybe", No},
	}
	for _, test := range tests {
		t.Run(test.response, func(t *testing.T) {
			assert.Equal(t, test.expected, match(test.response, []string{No, Yes}))
		})
	}
	assert.Equal(t, Yes, match("", []string{Yes, No}))
}
