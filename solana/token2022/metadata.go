package token2022

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// TokenMetadata is the variable-length metadata record stored in the TokenMetadata extension.
type TokenMetadata struct {
	UpdateAuthority    *solana.PublicKey
	Mint               solana.PublicKey
	Name               string
	Symbol             string
	URI                string
	AdditionalMetadata [][2]string
}

// Get returns an additional metadata value by key.
func (m *TokenMetadata) Get(key string) (string, bool) {
	for _, kv := range m.AdditionalMetadata {
		if kv[0] == key {
			return kv[1], true
		}
	}
	return "", false
}

// DecodeTokenMetadata decodes the value of a TokenMetadata TLV record.
func DecodeTokenMetadata(raw []byte) (*TokenMetadata, error) {
	dec := bin.NewBorshDecoder(raw)
	updateAuthority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("token metadata update authority: %w", err)
	}
	mint, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("token metadata mint: %w", err)
	}
	meta := &TokenMetadata{
		UpdateAuthority: optionalNonZeroPubkey(updateAuthority),
		Mint:            solana.PublicKeyFromBytes(mint),
	}
	if meta.Name, err = readBorshString(dec); err != nil {
		return nil, fmt.Errorf("token metadata name: %w", err)
	}
	if meta.Symbol, err = readBorshString(dec); err != nil {
		return nil, fmt.Errorf("token metadata symbol: %w", err)
	}
	if meta.URI, err = readBorshString(dec); err != nil {
		return nil, fmt.Errorf("token metadata uri: %w", err)
	}
	count, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("token metadata additional length: %w", err)
	}
	// each pair takes at least 8 bytes
	if int(count) > dec.Remaining()/8 {
		return nil, fmt.Errorf("token metadata additional length %d: %w", count, ErrTruncatedExtension)
	}
	for i := uint32(0); i < count; i++ {
		key, err := readBorshString(dec)
		if err != nil {
			return nil, fmt.Errorf("token metadata key %d: %w", i, err)
		}
		value, err := readBorshString(dec)
		if err != nil {
			return nil, fmt.Errorf("token metadata value %d: %w", i, err)
		}
		meta.AdditionalMetadata = append(meta.AdditionalMetadata, [2]string{key, value})
	}
	return meta, nil
}

func readBorshString(dec *bin.Decoder) (string, error) {
	length, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", err
	}
	if int(length) > dec.Remaining() {
		return "", ErrTruncatedExtension
	}
	raw, err := dec.ReadNBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func writeBorshString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), bin.LE); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

// Encode serializes the metadata as stored on chain.
func (m *TokenMetadata) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	var updateAuthority solana.PublicKey
	if m.UpdateAuthority != nil {
		updateAuthority = *m.UpdateAuthority
	}
	if err := enc.WriteBytes(updateAuthority[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(m.Mint[:], false); err != nil {
		return nil, err
	}
	for _, s := range []string{m.Name, m.Symbol, m.URI} {
		if err := writeBorshString(enc, s); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint32(uint32(len(m.AdditionalMetadata)), bin.LE); err != nil {
		return nil, err
	}
	for _, kv := range m.AdditionalMetadata {
		if err := writeBorshString(enc, kv[0]); err != nil {
			return nil, err
		}
		if err := writeBorshString(enc, kv[1]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Size is the length of the TLV value.
func (m *TokenMetadata) Size() int {
	size := 32 + 32 + 4 + len(m.Name) + 4 + len(m.Symbol) + 4 + len(m.URI) + 4
	for _, kv := range m.AdditionalMetadata {
		size += 4 + len(kv[0]) + 4 + len(kv[1])
	}
	return size
}

// TokenMetadata decodes the TokenMetadata extension.
func (e *Extensions) TokenMetadata() (*TokenMetadata, error) {
	raw, err := e.value(ExtensionTokenMetadata)
	if err != nil {
		return nil, err
	}
	return DecodeTokenMetadata(raw)
}
