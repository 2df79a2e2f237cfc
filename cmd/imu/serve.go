package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/imu/acquisition"
	"github.com/mklimuk/imu/cmd/imu/console"
	"github.com/mklimuk/imu/webfeed"
)

var serveCmd = cli.Command{
	Name:  "serve",
	Usage: "publish samples to websocket clients",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "HTTP listen address",
		},
	}, acquisitionFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if c.IsSet("listen") {
			cfg.Listen = c.String("listen")
		}
		acq, err := acquisitionConfig(c, cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(commandContext(c), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, release, err := openSensor(ctx, cfg)
		if err != nil {
			return err
		}
		defer release()

		hub := webfeed.NewHub()
		go hub.Run(ctx)
		mux := http.NewServeMux()
		mux.Handle("/samples", hub)
		srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdown)
		}()
		go func() {
			slog.Info("serving samples", "address", cfg.Listen, "path", "/samples")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server failed", "error", err)
				stop()
			}
		}()

		w := acquisition.Start(ctx, s, acq)
		err = hub.Feed(ctx, w)
		stats := w.Stats()
		console.PInfof(console.PictoGlobe, "published %s samples, %s dropped for slow clients",
			console.White(stats.Samples), console.Yellow(hub.Dropped()))
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, webfeed.ErrHubStopped) {
			return console.ExitErr("acquisition failed", err)
		}
		return nil
	},
}
