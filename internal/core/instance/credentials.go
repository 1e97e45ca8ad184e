package instance

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// =============================================================================
// Instance Credentials
// =============================================================================

// Credentials identify and authenticate one instance. The secret seeds the
// backend's key broker; both values are passed through to the backend
// opaquely via INSTANCE_NAME and INSTANCE_SECRET.
type Credentials struct {
	Name   string
	Secret string
}

// secretBytes is the entropy of an instance secret; the backend expects a
// 64-character hex seed.
const secretBytes = 32

// NewCredentials generates credentials for a fresh instance. The name
// carries a uuid suffix so multiple self-hosted instances on one network
// stay distinguishable.
func NewCredentials() (Credentials, error) {
	seed := make([]byte, secretBytes)
	if _, err := rand.Read(seed); err != nil {
		return Credentials{}, err
	}

	return Credentials{
		Name:   "convex-self-hosted-" + uuid.NewString()[:8],
		Secret: hex.EncodeToString(seed),
	}, nil
}
