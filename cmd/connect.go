package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samaio/client"
)

var (
	// Name of saved keys to use instead of a transient destination
	keyName string

	// Sent once the stream is up
	message string

	// How long to wait for replies
	connectTimeout time.Duration
)

func init() {
	flags := ConnectCmd.Flags()

	flags.StringVar(&keyName, "key", "", "Use keys saved with \"samaio keys --save\"")
	flags.StringVarP(&message, "message", "m", "", "Send this once connected")
	flags.DurationVar(&connectTimeout, "timeout", 10*time.Second, "Give up after this long, 0 waits for the peer to hang up")

	AcceptCmd.Flags().StringVar(&keyName, "key", "", "Use keys saved with \"samaio keys --save\"")
}

var ConnectCmd = &cobra.Command{
	Use:   "connect DEST|NAME",
	Short: "Open a stream and print what the peer sends",
	Long: `Open a stream to a destination and print what the peer sends

Usage
	samaio connect alice.i2p --message hello

`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		dest, err := resolve(ctx, conf, log, args[0])
		if err != nil {
			return err
		}

		private, err := savedKey(ctx, conf.Keystore, keyName)
		if err != nil {
			return err
		}

		if connectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, connectTimeout)
			defer cancel()
		}

		var failure error

		stream := client.ConnectionCallbacks{
			Connected: func(c *client.Connection) {
				log.Info("Connected", zap.String("peer", args[0]))

				if message == "" {
					return
				}

				if err := c.Send([]byte(message)); err != nil {
					failure = err
					c.Session().Cancel()
				}
			},
			Read: func(c *client.Connection, data []byte) {
				_, _ = os.Stdout.Write(data)
			},
			Error: func(c *client.Connection) {
				failure = fmt.Errorf("Stream failed: %s", c.Err())
				c.Session().Cancel()
			},
			Disconnected: func(c *client.Connection) {
				c.Session().Cancel()
			},
		}

		s, err := client.StartSession(clientOptions(conf, log), client.SessionCallbacks{
			Created: func(s *client.Session) {
				if _, err := s.StreamConnect(stream, dest); err != nil {
					failure = err
					s.Cancel()
				}
			},
		}, private, client.KindStream, "")
		if err != nil {
			return err
		}
		defer s.Close()

		if err := run(ctx, conf, s); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if failure != nil {
			return failure
		}

		return sessionErr(s)
	},
}
