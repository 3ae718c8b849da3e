package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samaio/client"
)

var (
	// Send back everything received instead of printing it
	echo bool
)

func init() {
	AcceptCmd.Flags().BoolVar(&echo, "echo", false, "Send back everything the peer sends")
}

var AcceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Accept streams one after another until interrupted",
	Long: `Accept streams one after another until interrupted

The destination's public key is printed first, hand it to "samaio connect".

Usage
	samaio accept --key alice --echo

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

		private, err := savedKey(ctx, conf.Keystore, keyName)
		if err != nil {
			return err
		}

		var (
			failure error
			accept  func(s *client.Session)
		)

		accept = func(s *client.Session) {
			var (
				e        echoer
				accepted bool
				finished bool
			)

			done := func(c *client.Connection) {
				if finished {
					return
				}
				finished = true

				if !accepted {
					failure = fmt.Errorf("Accept failed: %s", c.Err())
					s.Cancel()
					return
				}

				if err := c.Close(); err != nil {
					log.Debug("Failed to close stream", zap.Error(err))
				}

				if s.IsActive() {
					accept(s)
				}
			}

			_, err := s.StreamAccept(client.ConnectionCallbacks{
				Accepted: func(c *client.Connection) {
					accepted = true
					log.Info("Accepted stream", zap.String("peer", c.DestinationKey()))
				},
				Read: func(c *client.Connection, data []byte) {
					if echo {
						e.push(c, data)
						return
					}

					_, _ = os.Stdout.Write(data)
				},
				Sent: func(c *client.Connection) {
					e.flush(c)
				},
				Error:        done,
				Disconnected: done,
			})
			if err != nil {
				failure = err
				s.Cancel()
			}
		}

		s, err := client.StartSession(clientOptions(conf, log), client.SessionCallbacks{
			Created: func(s *client.Session) {
				fmt.Println(s.PublicKey())
				accept(s)
			},
		}, private, client.KindStream, "")
		if err != nil {
			return err
		}
		defer s.Close()

		if err := run(ctx, conf, s); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		if failure != nil {
			return failure
		}

		return sessionErr(s)
	},
}

// echoer sends back what a connection reads. Only one send may be in
// flight, so reads arriving meanwhile are queued until OnSent.
type echoer struct {
	queued []byte
}

func (e *echoer) push(c *client.Connection, data []byte) {
	e.queued = append(e.queued, data...)
	e.flush(c)
}

func (e *echoer) flush(c *client.Connection) {
	if len(e.queued) == 0 || c.Pending() {
		return
	}

	// Send copies, so the queue can be reused right away
	if err := c.Send(e.queued); err != nil {
		return
	}

	e.queued = e.queued[:0]
}
