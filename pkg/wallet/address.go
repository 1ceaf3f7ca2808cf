package wallet

// PaymentAddress is a shielded address: a diversifier plus the
// transmission key notes are encrypted to.
type PaymentAddress struct {
	Diversifier     [DiversifierSize]byte
	TransmissionKey [32]byte
	Network         *Network
}

// Encode returns the bech32 representation of the address.
func (a PaymentAddress) Encode() (string, error) {
	if a.Network == nil {
		return "", ErrNullNetwork
	}
	payload := make([]byte, 0, DiversifierSize+32)
	payload = append(payload, a.Diversifier[:]...)
	payload = append(payload, a.TransmissionKey[:]...)
	return encodeBech32(a.Network.AddressHRP, payload)
}

// DecodeAddress parses a bech32 shielded address of the given network.
func DecodeAddress(addr string, network *Network) (*PaymentAddress, error) {
	if network == nil {
		return nil, ErrNullNetwork
	}
	hrp, payload, err := decodeBech32(addr)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	if hrp != network.AddressHRP || len(payload) != DiversifierSize+32 {
		return nil, ErrInvalidAddress
	}

	pa := &PaymentAddress{Network: network}
	copy(pa.Diversifier[:], payload[:DiversifierSize])
	copy(pa.TransmissionKey[:], payload[DiversifierSize:])
	return pa, nil
}
