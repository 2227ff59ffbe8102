package substrate

import (
	"fmt"
	"strings"

	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/domain/valueobjects"

	"github.com/vedhavyas/go-subkey/v2"
)

// genericNetwork is the generic Substrate prefix used to key records when
// the codec accepts every network.
const genericNetwork uint16 = 42

// SS58Codec validates recipient addresses. A negative Network accepts any
// network prefix; the address is then re-encoded under the generic prefix
// so one account id always maps to one record.
type SS58Codec struct {
	Network int
}

func (c SS58Codec) Parse(raw string) (valueobjects.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return valueobjects.Address{}, domainerrors.ErrInvalidAddress
	}
	network, publicKey, err := subkey.SS58Decode(raw)
	if err != nil {
		return valueobjects.Address{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidAddress, err)
	}
	if len(publicKey) != 32 {
		return valueobjects.Address{}, fmt.Errorf("%w: expected 32 byte account id, got %d", domainerrors.ErrInvalidAddress, len(publicKey))
	}
	if c.Network >= 0 && int(network) != c.Network {
		return valueobjects.Address{}, fmt.Errorf("%w: network %d, want %d", domainerrors.ErrInvalidAddress, network, c.Network)
	}
	if c.Network < 0 {
		network = genericNetwork
	}
	return valueobjects.Address{
		SS58:      subkey.SS58Encode(publicKey, network),
		Network:   network,
		PublicKey: publicKey,
	}, nil
}
