// Package btc provides the chain collaborators of the consensus engine:
// an address validator and a verifier for Bitcoin signed messages.
package btc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const messageMagic = "Bitcoin Signed Message:\n"

var (
	ErrUnknownNetwork     = errors.New("unknown bitcoin network")
	ErrUnsupportedAddress = errors.New("address type not supported")
)

// ParamsForNetwork maps a network name to its chain parameters.
func ParamsForNetwork(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "", "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
}

type AddressValidator struct {
	params *chaincfg.Params
}

func NewAddressValidator(params *chaincfg.Params) *AddressValidator {
	return &AddressValidator{params: params}
}

// IsValidAddress accepts any address that decodes for the configured network.
func (v *AddressValidator) IsValidAddress(address string) bool {
	addr, err := btcutil.DecodeAddress(address, v.params)
	if err != nil {
		return false
	}
	return addr.IsForNet(v.params)
}

// MessageVerifier checks signatures in the format produced by
// `signmessage`: a base64 compact signature over the double SHA-256 of the
// magic prefix and the message.
type MessageVerifier struct {
	params *chaincfg.Params
}

func NewMessageVerifier(params *chaincfg.Params) *MessageVerifier {
	return &MessageVerifier{params: params}
}

// MessageHash returns the digest that is signed for message.
func MessageHash(message string) []byte {
	var buf bytes.Buffer
	_ = wire.WriteVarString(&buf, 0, messageMagic)
	_ = wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// Verify recovers the signing key and reports whether it belongs to
// address. P2PKH and P2WPKH addresses are supported.
func (v *MessageVerifier) Verify(address, message, signature string) (bool, error) {
	addr, err := btcutil.DecodeAddress(address, v.params)
	if err != nil {
		return false, fmt.Errorf("decode address: %w", err)
	}
	if !addr.IsForNet(v.params) {
		return false, fmt.Errorf("address %s is not for %s", address, v.params.Name)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	pk, wasCompressed, err := ecdsa.RecoverCompact(sig, MessageHash(message))
	if err != nil {
		// A signature that recovers no key is simply not valid.
		return false, nil
	}

	var serialized []byte
	if wasCompressed {
		serialized = pk.SerializeCompressed()
	} else {
		serialized = pk.SerializeUncompressed()
	}
	keyHash := btcutil.Hash160(serialized)

	switch a := addr.(type) {
	case *btcutil.AddressPubKeyHash:
		return bytes.Equal(keyHash, a.Hash160()[:]), nil
	case *btcutil.AddressWitnessPubKeyHash:
		if !wasCompressed {
			return false, nil
		}
		return bytes.Equal(keyHash, a.WitnessProgram()), nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedAddress, addr)
	}
}

// SignMessage produces a signature Verify accepts for the P2PKH or P2WPKH
// address of key.
func SignMessage(key *btcec.PrivateKey, message string) (string, error) {
	sig, err := ecdsa.SignCompact(key, MessageHash(message), true)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
