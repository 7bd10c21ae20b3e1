// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/emmansun/gmsm/sm2"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
)

func TestXorDecodeIsSelfInverse(t *testing.T) {
	plain := []byte(`{"enabled":true,"global_limit":500}`)
	encoded := make([]byte, len(plain))
	for i, b := range plain {
		encoded[i] = b ^ defaultXorKey[i%len(defaultXorKey)]
	}

	decoded, err := xorDecode(encoded)
	if err != nil {
		t.Fatalf("xorDecode: %v", err)
	}
	if string(decoded) != string(plain) {
		t.Errorf("xorDecode() = %q, want %q", decoded, plain)
	}
}

func TestVerifyFileHashesDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pinned.txt")
	if err := os.WriteFile(path, []byte("original contents"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	sum := sha256.Sum256([]byte("original contents"))

	if err := verifyFileHashes(map[string]string{path: hex.EncodeToString(sum[:])}); err != nil {
		t.Fatalf("verifyFileHashes with matching content: %v", err)
	}

	if err := os.WriteFile(path, []byte("tampered contents"), 0o600); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	if err := verifyFileHashes(map[string]string{path: hex.EncodeToString(sum[:])}); err == nil {
		t.Error("expected verifyFileHashes to reject tampered content")
	}
}

// signArtifact produces a rate_limit.bin + .sig pair and a matching PEM
// public key file, mirroring what the operator's offline signing tool
// would produce.
func signArtifact(t *testing.T, dir string, cfg artifactConfig) (artifactPath, sigPath, pubKeyPath string, priv *sm2.PrivateKey) {
	t.Helper()

	plain, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal artifact config: %v", err)
	}
	encoded := make([]byte, len(plain))
	for i, b := range plain {
		encoded[i] = b ^ defaultXorKey[i%len(defaultXorKey)]
	}

	priv, err = sm2.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sm2.GenerateKey: %v", err)
	}
	sig, err := priv.SignWithSM2(rand.Reader, sm2SignerUID, encoded)
	if err != nil {
		t.Fatalf("priv.SignWithSM2: %v", err)
	}

	ecdsaPub := &ecdsa.PublicKey{Curve: priv.PublicKey.Curve, X: priv.PublicKey.X, Y: priv.PublicKey.Y}
	derPub, err := x509.MarshalPKIXPublicKey(ecdsaPub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derPub})

	artifactPath = filepath.Join(dir, "rate_limit.bin")
	sigPath = filepath.Join(dir, "rate_limit.bin.sig")
	pubKeyPath = filepath.Join(dir, "public_key.pem")

	if err := os.WriteFile(artifactPath, encoded, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if err := os.WriteFile(sigPath, sig, 0o600); err != nil {
		t.Fatalf("write signature: %v", err)
	}
	if err := os.WriteFile(pubKeyPath, pubPEM, 0o600); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return artifactPath, sigPath, pubKeyPath, priv
}

func TestLoadArtifactAcceptsValidSignature(t *testing.T) {
	dir := t.TempDir()
	artifactPath, sigPath, pubKeyPath, _ := signArtifact(t, dir, artifactConfig{
		Enabled: true, GlobalLimit: 1000, GlobalPeriodSeconds: 86400,
	})

	cfg, err := loadArtifact(artifactPath, sigPath, pubKeyPath)
	if err != nil {
		t.Fatalf("loadArtifact: %v", err)
	}
	if !cfg.Enabled || cfg.GlobalLimit != 1000 {
		t.Errorf("loadArtifact() = %+v, want Enabled=true GlobalLimit=1000", cfg)
	}
}

func TestLoadArtifactRejectsTamperedArtifact(t *testing.T) {
	dir := t.TempDir()
	artifactPath, sigPath, pubKeyPath, _ := signArtifact(t, dir, artifactConfig{
		Enabled: true, GlobalLimit: 1000, GlobalPeriodSeconds: 86400,
	})

	raw, err := os.ReadFile(artifactPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	raw[0] ^= 0xFF
	if err := os.WriteFile(artifactPath, raw, 0o600); err != nil {
		t.Fatalf("rewrite artifact: %v", err)
	}

	_, err = loadArtifact(artifactPath, sigPath, pubKeyPath)
	if !apperr.Is(err, apperr.ConfigVerificationFailed) {
		t.Fatalf("loadArtifact() error = %v, want apperr.ConfigVerificationFailed", err)
	}
}
