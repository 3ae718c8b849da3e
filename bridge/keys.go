package bridge

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/luma/samaio/protocol"
	"github.com/luma/samaio/storage"
)

// i2pEncoding is base64 with the URL safe characters I2P uses.
var i2pEncoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-~").WithPadding(base64.NoPadding)

// generateKeys returns random keys of the right shape. Like real I2P keys,
// the private key starts with the public key.
func generateKeys() (storage.Keys, error) {
	pub := make([]byte, protocol.PublicKeySize/4*3)
	if _, err := rand.Read(pub); err != nil {
		return storage.Keys{}, err
	}

	priv := make([]byte, (protocol.PrivateKeySize-protocol.PublicKeySize)/4*3)
	if _, err := rand.Read(priv); err != nil {
		return storage.Keys{}, err
	}

	public := i2pEncoding.EncodeToString(pub)

	return storage.Keys{
		Public:  public,
		Private: public + i2pEncoding.EncodeToString(priv),
	}, nil
}

// keysFromPrivate recovers the key pair of a private key handed to
// SESSION CREATE.
func keysFromPrivate(private string) (storage.Keys, bool) {
	if !protocol.ValidKey(private, protocol.PrivateKeySize) {
		return storage.Keys{}, false
	}

	return storage.Keys{
		Public:  private[:protocol.PublicKeySize],
		Private: private,
	}, true
}
