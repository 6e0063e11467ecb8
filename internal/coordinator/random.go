package coordinator

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
)

type cryptoSource struct{}

// NewCryptoSource draws election seeds from the operating system CSPRNG.
func NewCryptoSource() RandomSource {
	return cryptoSource{}
}

func (cryptoSource) Uint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		logs.GetLogger().Fatalf("failed to read random seed, error: %+v", err)
	}
	return binary.LittleEndian.Uint64(buf[:])
}
