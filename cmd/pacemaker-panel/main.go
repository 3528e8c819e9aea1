// Command pacemaker-panel runs the pacemaker control-panel simulator: it
// polls the hardware adapter, owns the pacing session and serves the browser
// panel.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/bridge"
	"github.com/sweeney/pacemaker-panel/internal/config"
	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/mqtt"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
	"github.com/sweeney/pacemaker-panel/internal/status"
	"github.com/sweeney/pacemaker-panel/internal/web"
)

// tickInterval drives the session timers (auto-lock, watchdog, notices).
const tickInterval = 100 * time.Millisecond

// requestTimeout bounds each adapter HTTP request.
const requestTimeout = 2 * time.Second

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config) error {
	start := time.Now()

	client := hardware.NewHTTPClient(cfg.HardwareURLs[0], requestTimeout)
	poller := bridge.NewPoller(client, bridge.Config{
		Interval:      cfg.Poll,
		RetryInterval: cfg.Retry,
		FailThreshold: cfg.FailThreshold,
		Candidates:    cfg.HardwareURLs,
	})
	dispatcher := bridge.NewDispatcher(client, cfg.Cooldown, time.Now)
	machine := pacing.NewMachine(cfg.Timing(), start)

	tracker := status.NewTracker(start, status.Config{
		HTTPAddr:     cfg.HTTPAddr,
		HardwareURLs: cfg.HardwareURLs,
		PollMs:       cfg.Poll.Milliseconds(),
		RetryMs:      cfg.Retry.Milliseconds(),
		CooldownMs:   cfg.Cooldown.Milliseconds(),
		AutoLockMs:   cfg.AutoLock.Milliseconds(),
		WatchdogMs:   cfg.Watchdog.Milliseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.Broker,
	})
	tracker.Update(machine.Snapshot(start))

	l := &loop{
		machine:   machine,
		commands:  dispatcher,
		tracker:   tracker,
		heartbeat: cfg.Heartbeat,
		now:       time.Now,
		baseURL:   client.BaseURL,
	}

	if cfg.Broker != "" {
		publisher, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID)
		if err != nil {
			return err
		}
		defer publisher.Close()
		l.publisher = publisher
		l.mqttStatus = publisher

		tracker.SetMQTTConnected(publisher.IsConnected())
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan bridge.Report, 8)
	go func() {
		if err := poller.Run(ctx, reports); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("bridge: poller stopped: %v", err)
		}
	}()
	go dispatcher.Run(ctx)

	queue := web.NewQueue(16)
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, queue)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http panel listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: hardware=%v poll=%v auto-lock=%v broker=%q heartbeat=%v",
		cfg.HardwareURLs, cfg.Poll, cfg.AutoLock, cfg.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(ticker.C, sigCh, reports, queue.Requests(), dispatcher.LockResults())
}
