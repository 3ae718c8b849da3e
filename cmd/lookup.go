package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samaio/client"
	"github.com/luma/samaio/internal/env"
	"github.com/luma/samaio/protocol"
)

var LookupCmd = &cobra.Command{
	Use:   "lookup NAME",
	Short: "Resolve a name to a public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		key, err := resolve(ctx, conf, log, args[0])
		if err != nil {
			return err
		}

		fmt.Println(key)

		return nil
	},
}

// resolve returns name unchanged if it already is a public key, and looks
// it up through the bridge otherwise.
func resolve(ctx context.Context, conf *env.Config, log *zap.Logger, name string) (string, error) {
	if protocol.ValidKey(name, protocol.PublicKeySize) {
		return name, nil
	}

	s, err := client.LookupName(clientOptions(conf, log), nil, name)
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := run(ctx, conf, s); err != nil {
		return "", err
	}

	if err := sessionErr(s); err != nil {
		return "", fmt.Errorf("Failed to look up %s: %w", name, err)
	}

	return s.DestinationKey(), nil
}
