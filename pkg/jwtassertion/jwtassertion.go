// Package jwtassertion builds the signed JWT client assertion RFC 7523
// requires for the private_key_jwt token-endpoint-auth method (ES256 over
// an EC P-256 key) used by spec.md §4.7's client-credentials flow. The private key
// is decoded from its PKCS#8 DER encoding by scanning for the EC private
// key's OCTET STRING tag rather than a full ASN.1 parse: standard P-256
// PKCS#8 blobs encode the 32-byte scalar immediately after a single
// 0x04 0x20 tag-length pair, and that is the only shape this client needs
// to produce. A non-canonical encoding (one that happens to contain an
// earlier 0x04 0x20 byte pair) would misparse; this is a known, accepted
// limitation of the scanning heuristic, not a full PKCS#8 decoder.
package jwtassertion

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// header is the fixed JOSE header for the ES256 client assertion.
type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// claims is the RFC 7523 client-assertion claim set.
type claims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	JTI      string `json:"jti"`
}

///////////////////////////////////////////////////////////////////////////////
// KEY PARSING

// ParsePrivateKey decodes a PEM-encoded PKCS#8 EC private key and returns
// an *ecdsa.PrivateKey on curve P-256. It does not validate the full
// PKCS#8/ASN.1 structure; see the package doc comment.
func ParsePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("jwtassertion: no PEM block found")
	}
	scalar, err := scanPKCS8ECScalar(block.Bytes)
	if err != nil {
		return nil, err
	}

	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = curve
	priv.D = new(big.Int).SetBytes(scalar)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(scalar)
	return priv, nil
}

// scanPKCS8ECScalar locates the 32-byte EC private key scalar inside a
// PKCS#8 DER blob by scanning for the SEC1 ECPrivateKey octet-string tag
// (0x04 0x20) that precedes it.
func scanPKCS8ECScalar(der []byte) ([]byte, error) {
	const tag, length = 0x04, 0x20
	for i := 0; i+2+length <= len(der); i++ {
		if der[i] == tag && der[i+1] == length {
			return der[i+2 : i+2+length], nil
		}
	}
	return nil, fmt.Errorf("jwtassertion: could not locate 32-byte EC scalar in PKCS#8 blob")
}

///////////////////////////////////////////////////////////////////////////////
// ASSERTION

// New builds and signs an ES256 JWT client assertion per RFC 7523: iss and
// sub are both clientID, aud is the token endpoint, and the assertion is
// valid for 5 minutes from now.
func New(key *ecdsa.PrivateKey, clientID, tokenEndpoint string) (string, error) {
	now := time.Now()
	jti, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("jwtassertion: failed to generate jti: %w", err)
	}

	headerJSON, err := json.Marshal(header{Alg: "ES256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims{
		Issuer:   clientID,
		Subject:  clientID,
		Audience: tokenEndpoint,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(5 * time.Minute).Unix(),
		JTI:      jti.String(),
	})
	if err != nil {
		return "", err
	}

	signingInput := encodeSegment(headerJSON) + "." + encodeSegment(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("jwtassertion: signing failed: %w", err)
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
