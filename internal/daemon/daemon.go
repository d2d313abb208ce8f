// Package daemon implements the rtspd process lifecycle.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/rtspd/internal/config"
	"firestige.xyz/rtspd/internal/log"
	"firestige.xyz/rtspd/internal/metrics"
	"firestige.xyz/rtspd/internal/server"
	"firestige.xyz/rtspd/internal/sink"
)

// Daemon wires configuration, logging, metrics, the sink and the RTSP server.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	pidFile    string
	out        io.Writer // console sink output

	sink          sink.Sink
	server        *server.Server
	metricsServer *metrics.Server // nil if metrics disabled
	serverDone    chan error

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads the configuration. Nothing is started until Start.
func New(configPath, pidFile string, out io.Writer) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if out == nil {
		out = os.Stdout
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		out:          out,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes every component and begins accepting connections.
func (d *Daemon) Start() error {
	// 1. Logging first so the rest can report
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"config": d.configPath,
		"listen": d.config.Server.Listen,
		"sink":   d.config.Sink.Type,
	}).Info("starting rtspd")

	// 2. PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Metrics
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Sink
	s, err := sink.New(d.config.Sink, d.out)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	d.sink = s

	// 5. RTSP listener; bind now so address errors fail Start
	d.server = server.New(d.config.Server, d.config.Parser.Limits(), d.sink)
	if err := d.server.Listen(); err != nil {
		return err
	}
	d.serverDone = make(chan error, 1)
	go func() {
		d.serverDone <- d.server.Serve(d.ctx)
	}()

	log.GetLogger().Info("rtspd started")
	return nil
}

// Addr returns the RTSP listener address, or nil before Start.
func (d *Daemon) Addr() net.Addr {
	if d.server == nil {
		return nil
	}
	return d.server.Addr()
}

// Run blocks until SIGTERM/SIGINT or TriggerShutdown. SIGHUP reloads logging.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			log.GetLogger().Info("shutdown requested")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// TriggerShutdown asks Run to stop.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Stop shuts components down in reverse order of Start.
func (d *Daemon) Stop() {
	log.GetLogger().Info("initiating graceful shutdown")

	// 1. No new connections, close open ones
	d.cancel()
	if d.serverDone != nil {
		select {
		case err := <-d.serverDone:
			if err != nil {
				log.GetLogger().WithError(err).Error("rtsp server stopped with error")
			}
		case <-time.After(5 * time.Second):
			log.GetLogger().Warn("rtsp server did not stop in time")
		}
		d.serverDone = nil
	}

	// 2. Flush the sink
	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			log.GetLogger().WithError(err).Error("error closing sink")
		}
		d.sink = nil
	}

	// 3. Metrics
	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Error("error stopping metrics server")
		}
		d.metricsServer = nil
	}

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	if err := d.removePIDFile(); err != nil {
		log.GetLogger().WithError(err).Error("error removing PID file")
	}

	log.GetLogger().Info("rtspd stopped")
}

// Reload re-reads the configuration file. Only logging is applied live;
// changes to other sections are reported and need a restart.
func (d *Daemon) Reload() error {
	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	if err := log.Init(newConfig.Log); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	var requiresRestart []string
	if newConfig.Server != d.config.Server {
		requiresRestart = append(requiresRestart, "server")
	}
	if newConfig.Parser != d.config.Parser {
		requiresRestart = append(requiresRestart, "parser")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.Sink.Type != d.config.Sink.Type {
		requiresRestart = append(requiresRestart, "sink")
	}
	d.config.Log = newConfig.Log

	log.GetLogger().WithField("requires_restart", requiresRestart).Info("configuration reloaded")
	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
