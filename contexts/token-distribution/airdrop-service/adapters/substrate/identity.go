package substrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// FundingIdentity is the key pair every disbursement is paid from.
type FundingIdentity struct {
	pair signature.KeyringPair
}

// LoadFundingIdentity accepts a mnemonic, a hex seed or a derivation URI
// such as //Alice.
func LoadFundingIdentity(secret string, network uint16) (*FundingIdentity, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("funding secret is empty")
	}
	pair, err := signature.KeyringPairFromSecret(strings.TrimSpace(secret), network)
	if err != nil {
		return nil, fmt.Errorf("load funding identity: %w", err)
	}
	return &FundingIdentity{pair: pair}, nil
}

func (f *FundingIdentity) Address() string {
	return f.pair.Address
}

func (f *FundingIdentity) PublicKey() []byte {
	return append([]byte(nil), f.pair.PublicKey...)
}
