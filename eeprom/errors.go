package eeprom

import "errors"

var (
	ErrHeaderInvalid = errors.New("invalid eeprom header")
	ErrImageCorrupt  = errors.New("corrupt eeprom image")
	ErrVerifyFailed  = errors.New("eeprom verification failed")
	ErrUsage         = errors.New("invalid eeprom usage")
)
