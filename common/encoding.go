package common

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Address represents an Ark address with prefix, server public key and
// VTXO taproot output key.
type Address struct {
	HRP        string
	Server     *secp256k1.PublicKey
	VtxoTapKey *secp256k1.PublicKey
}

// Encode converts the address to its bech32m string representation.
// The payload is the 32-byte x-only server key followed by the 32-byte
// x-only vtxo taproot key.
func (a *Address) Encode() (string, error) {
	if a.Server == nil {
		return "", fmt.Errorf("missing server public key")
	}
	if a.VtxoTapKey == nil {
		return "", fmt.Errorf("missing vtxo taproot key")
	}
	if !isSupportedPrefix(a.HRP) {
		return "", fmt.Errorf("unknown prefix %s", a.HRP)
	}

	combinedKey := append(
		schnorr.SerializePubKey(a.Server), schnorr.SerializePubKey(a.VtxoTapKey)...,
	)
	grp, err := bech32.ConvertBits(combinedKey, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(a.HRP, grp)
}

// DecodeAddress parses a bech32m encoded address string and returns an
// Address struct.
func DecodeAddress(addr string) (*Address, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("missing address")
	}

	prefix, buf, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return nil, err
	}
	if !isSupportedPrefix(prefix) {
		return nil, fmt.Errorf("unknown prefix %s", prefix)
	}
	grp, err := bech32.ConvertBits(buf, 5, 8, false)
	if err != nil {
		return nil, err
	}
	// the payload is exactly two x-only keys
	if len(grp) != 64 {
		return nil, fmt.Errorf("invalid address payload length %d", len(grp))
	}

	serverKey, err := schnorr.ParsePubKey(grp[:32])
	if err != nil {
		return nil, fmt.Errorf("failed to parse server public key: %s", err)
	}

	vtxoKey, err := schnorr.ParsePubKey(grp[32:64])
	if err != nil {
		return nil, fmt.Errorf("failed to parse vtxo taproot key: %s", err)
	}

	return &Address{
		HRP:        prefix,
		Server:     serverKey,
		VtxoTapKey: vtxoKey,
	}, nil
}

// PkScript returns the taproot output script paying to the address.
func (a *Address) PkScript() ([]byte, error) {
	if a.VtxoTapKey == nil {
		return nil, fmt.Errorf("missing vtxo taproot key")
	}
	return P2TRScript(a.VtxoTapKey)
}
