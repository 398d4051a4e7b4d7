// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // G505: HMAC-SHA1 is required for wire compatibility, not used as a bare hash.
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"strings"
)

// maxPayloadSize bounds decompressed payloads.
const maxPayloadSize = 64 << 10

var tokenEncoding = base64.RawURLEncoding

// itsdangerousCodec produces URL-safe timed tokens in the format used by
// Python's itsdangerous.URLSafeTimedSerializer with the default signer:
//
//	base64(json) "." base64(timestamp) "." base64(HMAC-SHA1)
//
// A leading "." on the payload marks zlib compression.
type itsdangerousCodec struct {
	key []byte
}

func newItsdangerousCodec(secret string) *itsdangerousCodec {
	// django-concat key derivation: SHA1(salt + "signer" + secret).
	h := sha1.New() //nolint:gosec // G401: key derivation mandated by the wire format.
	h.Write([]byte(TokenSalt))
	h.Write([]byte("signer"))
	h.Write([]byte(secret))
	return &itsdangerousCodec{key: h.Sum(nil)}
}

func (c *itsdangerousCodec) encode(subject string, issuedAt int64) (string, error) {
	payload, err := encodePayload(subject)
	if err != nil {
		return "", err
	}
	value := payload + "." + tokenEncoding.EncodeToString(timestampBytes(issuedAt))
	return value + "." + c.sign(value), nil
}

func (c *itsdangerousCodec) decode(token string) (string, int64, error) {
	value, sig, ok := cutLast(token, '.')
	if !ok {
		return "", 0, ErrInvalidToken
	}
	// Compare encoded forms so that every signature character is significant.
	if subtle.ConstantTimeCompare([]byte(sig), []byte(c.sign(value))) != 1 {
		return "", 0, ErrInvalidToken
	}

	payload, ts, ok := cutLast(value, '.')
	if !ok {
		return "", 0, ErrInvalidToken
	}

	raw, err := tokenEncoding.DecodeString(ts)
	if err != nil || len(raw) > 8 {
		return "", 0, ErrInvalidToken
	}
	var buf [8]byte
	copy(buf[8-len(raw):], raw)
	issuedAt := binary.BigEndian.Uint64(buf[:])
	if issuedAt > math.MaxInt64 {
		return "", 0, ErrInvalidToken
	}

	subject, err := decodePayload(payload)
	if err != nil {
		return "", 0, ErrInvalidToken
	}
	return subject, int64(issuedAt), nil
}

func (c *itsdangerousCodec) sign(value string) string {
	mac := hmac.New(sha1.New, c.key)
	mac.Write([]byte(value))
	return tokenEncoding.EncodeToString(mac.Sum(nil))
}

func encodePayload(subject string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(subject); err != nil {
		return "", err
	}
	raw := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	if compressed.Len() < len(raw)-1 {
		return "." + tokenEncoding.EncodeToString(compressed.Bytes()), nil
	}
	return tokenEncoding.EncodeToString(raw), nil
}

func decodePayload(payload string) (string, error) {
	compressed := strings.HasPrefix(payload, ".")
	if compressed {
		payload = payload[1:]
	}

	raw, err := tokenEncoding.DecodeString(payload)
	if err != nil {
		return "", err
	}

	if compressed {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return "", err
		}
		defer zr.Close() //nolint:errcheck // read-only reader
		raw, err = io.ReadAll(io.LimitReader(zr, maxPayloadSize+1))
		if err != nil {
			return "", err
		}
		if len(raw) > maxPayloadSize {
			return "", ErrInvalidToken
		}
	}

	var subject string
	if err := json.Unmarshal(raw, &subject); err != nil {
		return "", err
	}
	return subject, nil
}

// timestampBytes returns ts as minimal big-endian bytes.
func timestampBytes(ts int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	i := 0
	for i < len(buf) && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

func cutLast(s string, sep byte) (before, after string, found bool) {
	i := strings.LastIndexByte(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}
