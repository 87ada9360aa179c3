// Command s3browser runs the single-user S3 gateway: an encrypted
// credential vault, password-gated sessions and an HTTP API that
// mediates every S3 operation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/oddbit-project/s3browser/config"
	"github.com/oddbit-project/s3browser/httpd"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
	"github.com/oddbit-project/s3browser/services"
	"github.com/oddbit-project/s3browser/session"
	"github.com/oddbit-project/s3browser/vault"
)

const (
	version = "1.0.0"

	shutdownTimeout = 15 * time.Second
)

func main() {
	app := &cli.App{
		Name:    "s3browser",
		Usage:   "password-gated gateway for S3-compatible storage",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "bind",
				Usage: "listen address",
				Value: config.DefaultBindAddr,
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "data directory (default ~/" + config.DefaultDirName + ")",
			},
			&cli.StringFlag{
				Name:  "tls-cert",
				Usage: "TLS certificate file",
			},
			&cli.StringFlag{
				Name:  "tls-key",
				Usage: "TLS key file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logCfg := log.NewDefaultConfig()
	if c.Bool("debug") {
		logCfg.Level = "debug"
	}
	if err := log.Configure(logCfg); err != nil {
		return err
	}
	logger := log.New("s3browser")

	var cfg *config.AppConfig
	var err error
	if dir := c.String("data-dir"); dir != "" {
		cfg, err = config.NewAppConfigWithDir(c.String("bind"), dir)
	} else {
		cfg, err = config.NewAppConfig(c.String("bind"))
	}
	if err != nil {
		return err
	}
	cfg.Debug = c.Bool("debug")

	// a wrong key is fatal here, before any request is served
	store, err := vault.Open(cfg.DatabasePath, cfg.EncryptionKey, log.New("vault"))
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := session.NewStore(session.NewConfig(), cfg.LoginPassword, log.New("session"))
	if err != nil {
		return err
	}
	sessions.StartCleanup()
	defer sessions.StopCleanup()

	factory := s3api.NewFactory(store, log.New("s3-factory"))

	listing := services.NewListingService(log.New("listing"))
	upload := services.NewUploadService(log.New("upload"))
	upload.StartReaper()
	defer upload.StopReaper()

	serverCfg := httpd.NewServerConfig()
	serverCfg.BindAddr = cfg.BindAddr
	serverCfg.Debug = cfg.Debug
	serverCfg.TLSCert = c.String("tls-cert")
	serverCfg.TLSKey = c.String("tls-key")

	server, err := httpd.NewServer(serverCfg, log.New("httpd"))
	if err != nil {
		return err
	}

	api := httpd.NewAPI(httpd.Deps{
		Vault:         store,
		Sessions:      sessions,
		Factory:       factory,
		Listing:       listing,
		BucketInfo:    services.NewBucketInfoService(log.New("bucketinfo")),
		Upload:        upload,
		Mutation:      services.NewMutationService(listing, log.New("mutation")),
		Download:      services.NewDownloadService(log.New("download")),
		Export:        services.NewProfileExportService(store, log.New("export")),
		Logger:        log.New("api"),
		SecureCookies: serverCfg.UseTLS(),
		EnableSeed:    cfg.EnableSeed,
	})
	api.Register(server.Group("/api"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", log.KV{
			"addr": cfg.BindAddr,
			"tls":  serverCfg.UseTLS(),
		})
		errCh <- server.Start()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errCh:
		return err
	case sig := <-signals:
		logger.Info("shutting down", log.KV{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(ctx); err != nil {
		return err
	}
	return <-errCh
}
