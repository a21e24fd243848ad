package atom

// CRC-16/ARC parameters used by every atom trailer.
const (
	// crc16Polynomial is 0x8005 bit-reversed
	crc16Polynomial = 0xA001
	crc16Initial    = 0x0000
)

// CRC16 computes the checksum stored in an atom trailer: CRC-16/ARC
// (reflected polynomial 0x8005, initial value 0, no final XOR).
func CRC16(data []byte) uint16 {
	return updateCRC16(crc16Initial, data)
}

func updateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crc16Polynomial
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
