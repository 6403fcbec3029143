// Package webpush implements the sending side of the Web Push protocol:
// VAPID authentication (RFC 8292) and aes128gcm payload encryption
// (RFC 8188, RFC 8291).
package webpush

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidVAPIDKeys means the application server keys are missing or
// malformed. It affects every subscription, so callers must not treat it
// like a per-subscription failure.
var ErrInvalidVAPIDKeys = errors.New("webpush: invalid VAPID keys")

const (
	uncompressedPointLen = 65
	scalarLen            = 32

	// DefaultJWTExpiry is how long a VAPID token stays valid. RFC 8292
	// caps it at 24 hours.
	DefaultJWTExpiry = 12 * time.Hour
)

// JWK is the JSON Web Key form of a P-256 key pair.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

// ECDSAPrivateKey imports the JWK as a P-256 signing key.
func (k JWK) ECDSAPrivateKey() (*ecdsa.PrivateKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("%w: unsupported key type %s/%s", ErrInvalidVAPIDKeys, k.Kty, k.Crv)
	}
	x, err := decodeFixed(k.X, scalarLen)
	if err != nil {
		return nil, fmt.Errorf("%w: x: %v", ErrInvalidVAPIDKeys, err)
	}
	y, err := decodeFixed(k.Y, scalarLen)
	if err != nil {
		return nil, fmt.Errorf("%w: y: %v", ErrInvalidVAPIDKeys, err)
	}
	d, err := decodeFixed(k.D, scalarLen)
	if err != nil {
		return nil, fmt.Errorf("%w: d: %v", ErrInvalidVAPIDKeys, err)
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		},
		D: new(big.Int).SetBytes(d),
	}, nil
}

// VAPIDKeys is the application server key pair used to sign push requests.
type VAPIDKeys struct {
	publicKey  string
	jwk        JWK
	privateKey *ecdsa.PrivateKey
}

// ParseVAPIDKeys imports a key pair given as URL-safe base64: the 65 byte
// uncompressed public point and the 32 byte private scalar. The private
// scalar must match the public key.
func ParseVAPIDKeys(publicKey, privateKey string) (*VAPIDKeys, error) {
	if publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("%w: public and private key are required", ErrInvalidVAPIDKeys)
	}

	pub, err := decodeFixed(publicKey, uncompressedPointLen)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrInvalidVAPIDKeys, err)
	}
	if pub[0] != 0x04 {
		return nil, fmt.Errorf("%w: public key is not an uncompressed point", ErrInvalidVAPIDKeys)
	}

	d, err := decodeFixed(privateKey, scalarLen)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidVAPIDKeys, err)
	}

	derived, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidVAPIDKeys, err)
	}
	if !bytes.Equal(derived.PublicKey().Bytes(), pub) {
		return nil, fmt.Errorf("%w: private key does not match public key", ErrInvalidVAPIDKeys)
	}

	jwk := JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   encode(pub[1:33]),
		Y:   encode(pub[33:65]),
		D:   encode(d),
	}
	key, err := jwk.ECDSAPrivateKey()
	if err != nil {
		return nil, err
	}

	return &VAPIDKeys{
		publicKey:  encode(pub),
		jwk:        jwk,
		privateKey: key,
	}, nil
}

// GenerateVAPIDKeys creates a fresh key pair in the encoding ParseVAPIDKeys
// expects.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return encode(key.PublicKey().Bytes()), encode(key.Bytes()), nil
}

// PublicKey is the application server key handed to browsers
// (applicationServerKey) and sent as the k= parameter.
func (k *VAPIDKeys) PublicKey() string {
	return k.publicKey
}

func (k *VAPIDKeys) JWK() JWK {
	return k.jwk
}

// SignJWT returns an ES256 token for the given push service audience.
// The signature segment is the 64 byte r||s form JWS requires.
func (k *VAPIDKeys) SignJWT(audience, subject string, expiresAt time.Time) (string, error) {
	if audience == "" {
		return "", errors.New("webpush: audience is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": audience,
		"exp": expiresAt.Unix(),
		"sub": subject,
	})
	signed, err := token.SignedString(k.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: signing: %v", ErrInvalidVAPIDKeys, err)
	}
	return signed, nil
}

// AuthorizationHeader formats the vapid scheme header value.
func (k *VAPIDKeys) AuthorizationHeader(token string) string {
	return fmt.Sprintf("vapid t=%s, k=%s", token, k.publicKey)
}

// Audience is the origin (scheme://host) of a push endpoint.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("webpush: parsing endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("webpush: endpoint %q is not an absolute URL", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// decode accepts URL-safe base64 with or without padding.
func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
}

func decodeFixed(s string, size int) ([]byte, error) {
	b, err := decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(b))
	}
	return b, nil
}
