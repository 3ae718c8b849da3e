package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samaio/client"
	"github.com/luma/samaio/cmd/gen"
	"github.com/luma/samaio/internal/env"
	"github.com/luma/samaio/transport"
)

var (
	// Path of an optional TOML config file
	configPath string

	// The host of the SAM bridge
	host string

	// The bridge's TCP and UDP ports
	port    int
	udpPort int

	debug bool
)

var RootCmd = &cobra.Command{
	Use:           "samaio",
	Short:         "A non-blocking SAM v3 client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	flags.StringVarP(&host, "host", "a", "", "Host of the SAM bridge")
	flags.IntVarP(&port, "port", "p", 0, "TCP port of the SAM bridge")
	flags.IntVar(&udpPort, "udp-port", 0, "UDP port of the SAM bridge")
	flags.BoolVar(&debug, "debug", false, "Log at debug level")

	RootCmd.AddCommand(BridgeCmd, KeysCmd, LookupCmd, ConnectCmd, AcceptCmd, VersionCmd, gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config, lets the command line flags override it and
// builds the logger.
func setup(ctx context.Context) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}

	if host != "" {
		conf.Host = host
	}

	if port != 0 {
		conf.Port = port
	}

	if udpPort != 0 {
		conf.UDPPort = udpPort
	}

	conf.Debug = conf.Debug || debug

	log, err := env.MakeLogger(conf.Debug)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

func clientOptions(conf *env.Config, log *zap.Logger) client.Options {
	return client.Options{
		Host:    conf.Host,
		Port:    conf.Port,
		UDPPort: conf.UDPPort,
		Log:     log.Named("client"),
	}
}

// run drives sessions on a fresh poller until they all finish.
func run(ctx context.Context, conf *env.Config, sessions ...*client.Session) error {
	poller, err := transport.MakePoller()
	if err != nil {
		return err
	}
	defer poller.Close()

	return client.Run(ctx, poller, conf.PollTimeout, sessions...)
}

// sessionErr turns a failed session into an error.
func sessionErr(s *client.Session) error {
	if s.Err() == "" {
		return nil
	}

	if cause := s.Cause(); cause != nil {
		return fmt.Errorf("%s: %w", s.Err(), cause)
	}

	return fmt.Errorf("%s", s.Err())
}
