package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"

	"asimount/pkg/alpaca"
	"asimount/pkg/drivers/am"
	"asimount/pkg/sim"
	"asimount/templates"
)

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	log.Info("AM Mount Alpaca Server")

	tmpl, err := templates.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %v", err)
	}

	db, err := bolt.Open(c.String("db"), 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	store, err := alpaca.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to create store: %v", err)
	}

	if path := c.String("config"); path != "" {
		if err := am.SeedConfig(db, path); err != nil {
			return fmt.Errorf("failed to seed config: %v", err)
		}
	}

	if c.Bool("simulate") {
		simMount := sim.NewMount(log.WithField("component", "sim"))
		if err := simMount.Listen("127.0.0.1:0"); err != nil {
			return fmt.Errorf("failed to start mount simulator: %v", err)
		}
		defer simMount.Close()

		target := "lx200://" + simMount.Addr()
		log.Infof("Mount simulator listening, connection target set to %s", target)
		if err := am.SetTarget(db, target); err != nil {
			return fmt.Errorf("failed to point config at simulator: %v", err)
		}
	}

	mount, err := am.NewDriver(0, db, tmpl, log.WithField("driver", "am"))
	if err != nil {
		return fmt.Errorf("failed to create mount driver: %v", err)
	}
	defer mount.Close()

	guider := mount.Guider(1)
	defer func() {
		if guider.Connected() {
			if err := guider.Disconnect(); err != nil {
				log.Errorf("failed to disconnect guider: %v", err)
			}
		}
	}()

	serverDesc := alpaca.ServerDescription{
		Name:                "AM Mount Alpaca Server",
		Manufacturer:        "ZWO",
		ManufacturerVersion: "1.0",
		Location:            "observatory",
	}

	devices := []alpaca.Device{
		mount,
		guider,
	}
	server := alpaca.NewServer(serverDesc, devices, store, tmpl)

	mux := server.AddRoutes()
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Int("port")),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		log.Debugf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", srv.Addr, err)
		}
		wg.Done()
	}()

	discoveryLogger := log.WithField("component", "discovery")
	dr, err := alpaca.NewDiscoveryResponder("0.0.0.0", c.Int("port"), discoveryLogger)
	if err != nil {
		log.Fatalf("Failed to start discovery responder: %v", err)
	}

	wg.Add(1)
	go func() {
		if err := dr.Run(ctx); err != nil {
			log.Fatalf("Discovery responder failed: %v", err)
		}
		wg.Done()
		log.Debug("Discovery responder stopped")
	}()

	<-ctx.Done()

	log.Info("Shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx2); err != nil {
		return fmt.Errorf("server forced to shutdown: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func main() {
	app := cli.App{
		Name:  "AM Mount Alpaca Server",
		Usage: "Alpaca driver for ZWO AM harmonic-drive mounts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   8090,
				EnvVars: []string{"ALPACA_PORT"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the configuration database",
				Value:   "alpaca.db",
				EnvVars: []string{"ALPACA_DB"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML file to seed the mount configuration from",
				EnvVars: []string{"ALPACA_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "simulate",
				Usage:   "Run against a built-in mount simulator",
				EnvVars: []string{"ALPACA_SIMULATE"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
