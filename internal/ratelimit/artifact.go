// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emmansun/gmsm/sm2"
	"github.com/emmansun/gmsm/sm3"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
	"github.com/quzard/misaka-danmu-server/internal/logging"
)

// sm2SignerUID is the SM2 identity value the operator's signing tool
// used to produce rate_limit.bin.sig; GB/T 32918 calls this the
// "user-tied UID" and fixes a well-known default for single-signer
// deployments rather than negotiating one out of band.
var sm2SignerUID = []byte("misaka-danmu-server")

// artifactConfig is the decoded JSON payload of rate_limit.bin.
type artifactConfig struct {
	Enabled             bool              `json:"enabled"`
	GlobalLimit         int               `json:"global_limit"`
	GlobalPeriodSeconds int               `json:"global_period_seconds"`
	XorKey              string            `json:"xorKey"`
	FileHashes          map[string]string `json:"file_hashes"`
}

// loadArtifact reads, decodes and verifies the rate-limit artifact at
// artifactPath against its detached signature and the named public key,
// then checks every file in its file_hashes manifest still matches its
// recorded SHA-256. Any failure returns apperr.ConfigVerificationFailed.
func loadArtifact(artifactPath, signaturePath, publicKeyPath string) (*artifactConfig, error) {
	raw, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read artifact: %v", apperr.ConfigVerificationFailed, err)
	}
	sig, err := os.ReadFile(signaturePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read signature: %v", apperr.ConfigVerificationFailed, err)
	}
	pub, err := loadSM2PublicKey(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load public key: %v", apperr.ConfigVerificationFailed, err)
	}

	if !sm2.VerifyASN1WithSM2(pub, sm2SignerUID, raw, sig) {
		fingerprint := sm3.Sum(raw)
		logging.Error().Str("sm3_fingerprint", hex.EncodeToString(fingerprint[:])).Msg("rate limit artifact signature verification failed")
		return nil, fmt.Errorf("%w: signature mismatch", apperr.ConfigVerificationFailed)
	}

	plain, err := xorDecode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", apperr.ConfigVerificationFailed, err)
	}

	var cfg artifactConfig
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse artifact json: %v", apperr.ConfigVerificationFailed, err)
	}

	if err := verifyFileHashes(cfg.FileHashes); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ConfigVerificationFailed, err)
	}

	return &cfg, nil
}

// xorDecode reverses the repeating-key XOR obfuscation the artifact was
// encoded with; the key travels inside the decoded JSON itself (xorKey),
// so this first pass uses the embedded defaultXorKey every artifact is
// built with before that field can be read.
func xorDecode(raw []byte) ([]byte, error) {
	if len(defaultXorKey) == 0 {
		return nil, fmt.Errorf("empty xor key")
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = b ^ defaultXorKey[i%len(defaultXorKey)]
	}
	return out, nil
}

// defaultXorKey is the fixed obfuscation key shared between the
// operator's signing tool and this loader; it is not a secret (the
// signature, not the XOR, provides integrity) but keeps the artifact
// from being readable as plain JSON at rest.
var defaultXorKey = []byte("misaka-rate-limit-artifact-v1")

func loadSM2PublicKey(path string) (*ecdsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	ecdsaPub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not an SM2/ECDSA key")
	}
	return ecdsaPub, nil
}

// verifyFileHashes re-hashes every path named in hashes and compares it
// against the recorded SHA-256, so tampering with any runtime artifact
// the operator chose to pin (binaries, provider configs) also flips the
// limiter into verification-failed state.
func verifyFileHashes(hashes map[string]string) error {
	for path, want := range hashes {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read pinned file %s: %w", path, err)
		}
		got := sha256.Sum256(data)
		if hex.EncodeToString(got[:]) != want {
			return fmt.Errorf("pinned file %s failed integrity check", path)
		}
	}
	return nil
}
