package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

const deviceIDSize = 16

// NewDeviceID returns 128 random bits, lowercase hex encoded.
func NewDeviceID() (string, error) {
	var raw [deviceIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// ValidDeviceID reports whether id has the shape produced by [NewDeviceID].
func ValidDeviceID(id string) bool {
	if len(id) != deviceIDSize*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// ErrInvalidDeviceID is returned when a persisted device id is corrupt.
var ErrInvalidDeviceID = errors.New("invalid device id")
