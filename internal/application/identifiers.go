package application

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func defaultIDGenerator() string {
	return uuid.NewString()
}

// defaultTokenGenerator returns 256 bits of entropy as 64 lowercase hex
// characters. Access tokens are bearer credentials for one loan and must not
// be guessable or enumerable.
func defaultTokenGenerator() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the platform entropy source is broken;
		// refusing to mint a weak token is the only safe response.
		panic("application: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
