package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samaio/bridge"
	"github.com/luma/samaio/storage"
)

var (
	// The port to listen for http requests on
	httpPort int
)

func init() {
	flags := BridgeCmd.Flags()

	flags.IntVar(&httpPort, "http-port", 0, "The port to serve /ping, /sessions and /metrics on")
}

var BridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run an in-process SAM bridge for local development",
	Long: `Run an in-process SAM bridge for local development

Streams and datagrams only ever reach sessions of the same bridge. Names
saved with "samaio keys --save" resolve through NAMING LOOKUP.

Usage
	samaio bridge --port 7656 --udp-port 7655

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := setup(ctx)
		if err != nil {
			return err
		}

		if httpPort != 0 {
			conf.HTTPPort = httpPort
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		book, err := loadAddressBook(conf.Keystore)
		if err != nil {
			return err
		}

		b := bridge.New(bridge.Options{
			Host:        conf.Host,
			Port:        conf.Port,
			UDPPort:     conf.UDPPort,
			Reuseport:   true,
			AddressBook: book,
			Log:         log.Named("bridge"),
		})

		if err := b.Start(ctx); err != nil {
			return err
		}

		router := setupRouter(conf.DebugHTTP, log)

		// Ping test
		router.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		router.GET("/sessions", func(c *gin.Context) {
			c.JSON(http.StatusOK, b.Sessions())
		})

		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(b.Gatherer(), promhttp.HandlerOpts{})))

		s := &http.Server{
			Addr:    net.JoinHostPort(conf.Host, strconv.Itoa(conf.HTTPPort)),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Stringer("addr", b.Addr()),
			zap.Stringer("udpAddr", b.UDPAddr()),
			zap.Int("httpPort", conf.HTTPPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := b.Close(); err != nil {
			log.Error("Bridge forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// loadAddressBook copies the saved keys into memory, so the keystore stays
// free for "samaio keys --save" while the bridge runs. A missing keystore
// gives an empty address book.
func loadAddressBook(path string) (storage.Store, error) {
	book := storage.NewInmemoryStore()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return book, nil
	}

	saved, err := storage.OpenBoltStore(path)
	if err != nil {
		return nil, err
	}
	defer saved.Close()

	values, err := saved.Backup()
	if err != nil {
		return nil, err
	}

	if err := book.Restore(values); err != nil {
		return nil, err
	}

	return book, nil
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
