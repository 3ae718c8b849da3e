package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samaio/client"
	"github.com/luma/samaio/storage"
)

var (
	// Name to save generated keys under in the keystore
	saveAs string
)

func init() {
	KeysCmd.Flags().StringVar(&saveAs, "save", "", "Save the keys in the keystore under this name")
}

var KeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate a new destination",
	Long: `Ask the bridge for a fresh key pair and print it

Usage
	samaio keys
	samaio keys --save alice

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		var keys storage.Keys

		s, err := client.GenerateKeys(clientOptions(conf, log), client.SessionCallbacks{
			Created: func(s *client.Session) {
				keys = storage.Keys{Public: s.PublicKey(), Private: s.PrivateKey()}
			},
		})
		if err != nil {
			return err
		}
		defer s.Close()

		if err := run(ctx, conf, s); err != nil {
			return err
		}

		if err := sessionErr(s); err != nil {
			return fmt.Errorf("Failed to generate keys: %w", err)
		}

		fmt.Println("PUB", keys.Public)
		fmt.Println("PRIV", keys.Private)

		if saveAs == "" {
			return nil
		}

		store, err := storage.OpenBoltStore(conf.Keystore)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Put(ctx, saveAs, keys); err != nil {
			return err
		}

		log.Info("Saved keys", zap.String("name", saveAs), zap.String("keystore", conf.Keystore))

		return nil
	},
}

// savedKey returns the private key saved under name, or an empty key for a
// transient destination when name is empty.
func savedKey(ctx context.Context, keystore, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	store, err := storage.OpenBoltStore(keystore)
	if err != nil {
		return "", err
	}
	defer store.Close()

	keys, err := store.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("Failed to load keys %s: %w", name, err)
	}

	return keys.Private, nil
}
