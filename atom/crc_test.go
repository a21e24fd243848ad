package atom

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	vendorAtom, err := hex.DecodeString("010000002c000000d0c5c2b0f361b6a11e4bc73cf5e1219cedfe01000b0954686520466163746f7279535049205468696e67")
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"empty", nil, 0x0000},
		{"check value", []byte("123456789"), 0xBB3D},
		{"single byte", []byte{0x01}, 0xC0C1},
		{"vendor atom", vendorAtom, 0xE4EB},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, CRC16(test.data))
		})
	}
}

func TestCRC16_Incremental(t *testing.T) {
	data := []byte("123456789")
	assert.Equal(t, CRC16(data), updateCRC16(CRC16(data[:4]), data[4:]))
}
