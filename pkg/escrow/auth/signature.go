package auth

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/escrow-payments/escrow-server/pkg/escrow/common"
	"github.com/escrow-payments/escrow-server/pkg/metrics"
)

const (
	metricsStructName = "auth.signature_verifier"
)

var (
	// ErrInvalidSignature is returned when a message was not signed by the
	// claimed party.
	ErrInvalidSignature = errors.New("message is not signed by the expected party")
)

// SignatureVerifier verifies signed request messages by party accounts.
type SignatureVerifier struct {
	log *logrus.Entry
}

func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{
		log: logrus.StandardLogger().WithField("type", "auth/signature_verifier"),
	}
}

// Authenticate authenticates that a request message is signed by the party's
// public key.
func (v *SignatureVerifier) Authenticate(ctx context.Context, party *common.Account, message, signature []byte) error {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "Authenticate").End()

	log := v.log.WithFields(logrus.Fields{
		"method":        "Authenticate",
		"party_account": party.PublicKey().ToBase58(),
	})

	if len(signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(party.PublicKey().ToBytes(), message, signature) {
		log.WithField("signature", base58.Encode(signature)).Info("message is not signature verified")
		return ErrInvalidSignature
	}
	return nil
}
