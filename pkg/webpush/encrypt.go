package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltLen    = 16
	authLen    = 16
	recordSize = 4096
	tagLen     = 16
	// salt(16) + rs(4) + idlen(1) + keyid(65)
	headerLen = saltLen + 4 + 1 + uncompressedPointLen

	// MaxPayloadSize is the largest plaintext that fits one 4096 byte record.
	MaxPayloadSize = recordSize - headerLen - tagLen - 1
)

var ErrPayloadTooLarge = errors.New("webpush: payload too large")

// encrypt produces an aes128gcm body (RFC 8188) keyed per RFC 8291 for the
// user agent's p256dh key and auth secret.
func encrypt(random io.Reader, plaintext []byte, p256dh, auth string) ([]byte, error) {
	if len(plaintext) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	uaPublicBytes, err := decodeFixed(p256dh, uncompressedPointLen)
	if err != nil {
		return nil, fmt.Errorf("webpush: p256dh: %w", err)
	}
	authSecret, err := decodeFixed(auth, authLen)
	if err != nil {
		return nil, fmt.Errorf("webpush: auth: %w", err)
	}

	curve := ecdh.P256()
	uaPublic, err := curve.NewPublicKey(uaPublicBytes)
	if err != nil {
		return nil, fmt.Errorf("webpush: p256dh: %w", err)
	}

	asPrivate, err := curve.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("webpush: generating ephemeral key: %w", err)
	}
	asPublicBytes := asPrivate.PublicKey().Bytes()

	sharedSecret, err := asPrivate.ECDH(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("webpush: ecdh: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("webpush: generating salt: %w", err)
	}

	cek, nonce, err := deriveContentKeys(sharedSecret, authSecret, salt, uaPublicBytes, asPublicBytes)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	// single record, so the padding delimiter is 0x02
	record := make([]byte, 0, len(plaintext)+1)
	record = append(record, plaintext...)
	record = append(record, 0x02)

	body := make([]byte, headerLen, headerLen+len(record)+tagLen)
	copy(body, salt)
	binary.BigEndian.PutUint32(body[saltLen:], recordSize)
	body[saltLen+4] = uncompressedPointLen
	copy(body[saltLen+5:], asPublicBytes)

	return gcm.Seal(body, nonce, record, nil), nil
}

// deriveContentKeys runs the RFC 8291 key schedule. uaPublic and asPublic
// are both uncompressed points.
func deriveContentKeys(sharedSecret, authSecret, salt, uaPublic, asPublic []byte) (cek, nonce []byte, err error) {
	keyInfo := make([]byte, 0, 14+2*uncompressedPointLen)
	keyInfo = append(keyInfo, "WebPush: info\x00"...)
	keyInfo = append(keyInfo, uaPublic...)
	keyInfo = append(keyInfo, asPublic...)

	prkKey := hkdf.Extract(sha256.New, sharedSecret, authSecret)
	ikm, err := expand(prkKey, keyInfo, 32)
	if err != nil {
		return nil, nil, err
	}

	prk := hkdf.Extract(sha256.New, ikm, salt)
	if cek, err = expand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16); err != nil {
		return nil, nil, err
	}
	if nonce, err = expand(prk, []byte("Content-Encoding: nonce\x00"), 12); err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

func expand(prk, info []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("webpush: hkdf: %w", err)
	}
	return out, nil
}
