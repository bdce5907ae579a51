package recoverykey

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/multiformats/go-multibase"
)

const (
	didKeyPrefixConstant               = "did:key:"
	keyGenerationTemplateConstant      = "unable to generate recovery key: %w"
	didKeyEncodingTemplateConstant     = "unable to encode did:key: %w"
	didKeyDecodingTemplateConstant     = "unable to decode did:key %q: %w"
	privateKeyDecodingTemplateConstant = "unable to decode private key: %w"
	didKeyPrefixMissingMessageConstant = "missing did:key: prefix"
	didKeyEncodingMessageConstant      = "did:key must use base58btc"
	didKeyCodecMessageConstant         = "did:key is not a secp256k1 public key"
	privateKeyLengthTemplateConstant   = "private key must be %d bytes, got %d"
	privateKeyLengthConstant           = 32
)

// secp256k1PublicKeyCodec is the multicodec varint for secp256k1-pub.
var secp256k1PublicKeyCodec = []byte{0xe7, 0x01}

// Keypair is a recovery key that can override identity operations signed by
// the account's data server.
type Keypair struct {
	// DID is the did:key form of the compressed public key.
	DID string
	// PrivateKeyHex is the 32-byte private scalar, hex encoded.
	PrivateKeyHex string
}

// Generator produces recovery keypairs.
type Generator interface {
	Generate() (Keypair, error)
}

// Secp256k1Generator generates secp256k1 recovery keys.
type Secp256k1Generator struct{}

// Generate creates a fresh keypair.
func (Secp256k1Generator) Generate() (Keypair, error) {
	return Generate()
}

// Generate creates a fresh secp256k1 keypair.
func Generate() (Keypair, error) {
	privateKey, generationError := secp256k1.GeneratePrivateKey()
	if generationError != nil {
		return Keypair{}, fmt.Errorf(keyGenerationTemplateConstant, generationError)
	}
	return keypairFromPrivateKey(privateKey)
}

// fromPrivateKeyHex rebuilds the keypair of a stored private key.
func fromPrivateKeyHex(privateKeyHex string) (Keypair, error) {
	privateKeyBytes, decodeError := hex.DecodeString(strings.TrimSpace(privateKeyHex))
	if decodeError != nil {
		return Keypair{}, fmt.Errorf(privateKeyDecodingTemplateConstant, decodeError)
	}
	if len(privateKeyBytes) != privateKeyLengthConstant {
		return Keypair{}, fmt.Errorf(privateKeyDecodingTemplateConstant, fmt.Errorf(privateKeyLengthTemplateConstant, privateKeyLengthConstant, len(privateKeyBytes)))
	}
	return keypairFromPrivateKey(secp256k1.PrivKeyFromBytes(privateKeyBytes))
}

// encodeDIDKey renders a secp256k1 public key as a did:key identifier.
func encodeDIDKey(publicKey *secp256k1.PublicKey) (string, error) {
	payload := append(append([]byte{}, secp256k1PublicKeyCodec...), publicKey.SerializeCompressed()...)
	encoded, encodeError := multibase.Encode(multibase.Base58BTC, payload)
	if encodeError != nil {
		return "", fmt.Errorf(didKeyEncodingTemplateConstant, encodeError)
	}
	return didKeyPrefixConstant + encoded, nil
}

// decodeDIDKey parses a secp256k1 did:key identifier.
func decodeDIDKey(did string) (*secp256k1.PublicKey, error) {
	encoded, hasPrefix := strings.CutPrefix(did, didKeyPrefixConstant)
	if !hasPrefix {
		return nil, fmt.Errorf(didKeyDecodingTemplateConstant, did, errors.New(didKeyPrefixMissingMessageConstant))
	}
	encoding, payload, decodeError := multibase.Decode(encoded)
	if decodeError != nil {
		return nil, fmt.Errorf(didKeyDecodingTemplateConstant, did, decodeError)
	}
	if encoding != multibase.Base58BTC {
		return nil, fmt.Errorf(didKeyDecodingTemplateConstant, did, errors.New(didKeyEncodingMessageConstant))
	}
	keyBytes, hasCodec := bytes.CutPrefix(payload, secp256k1PublicKeyCodec)
	if !hasCodec {
		return nil, fmt.Errorf(didKeyDecodingTemplateConstant, did, errors.New(didKeyCodecMessageConstant))
	}
	publicKey, parseError := secp256k1.ParsePubKey(keyBytes)
	if parseError != nil {
		return nil, fmt.Errorf(didKeyDecodingTemplateConstant, did, parseError)
	}
	return publicKey, nil
}

func keypairFromPrivateKey(privateKey *secp256k1.PrivateKey) (Keypair, error) {
	did, encodeError := encodeDIDKey(privateKey.PubKey())
	if encodeError != nil {
		return Keypair{}, encodeError
	}
	return Keypair{DID: did, PrivateKeyHex: hex.EncodeToString(privateKey.Serialize())}, nil
}
