package valueobjects

// Address is a decoded SS58 chain address.
type Address struct {
	SS58      string
	Network   uint16
	PublicKey []byte
}

func (a Address) String() string {
	return a.SS58
}
