package main

import (
	"errors"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/bridge"
	"github.com/sweeney/pacemaker-panel/internal/mqtt"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
	"github.com/sweeney/pacemaker-panel/internal/status"
	"github.com/sweeney/pacemaker-panel/internal/web"
)

// commandSink receives hardware writes drained from the machine.
type commandSink interface {
	Submit(cmds ...pacing.HardwareCommand)
}

// loop is the single goroutine that owns the pacing machine. Every input
// (timer ticks, hardware reports, browser commands, lock results) is
// serialized through run.
type loop struct {
	machine    *pacing.Machine
	commands   commandSink
	publisher  mqtt.Publisher        // nil when MQTT is disabled
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	tracker    *status.Tracker
	heartbeat  time.Duration
	now        func() time.Time
	baseURL    func() string

	lastHeartbeat time.Time
	lastSeen      time.Time
}

func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal, reports <-chan bridge.Report, requests <-chan web.Request, locks <-chan bool) error {
	l.lastHeartbeat = l.now()

	for {
		select {
		case s := <-sig:
			l.shutdown(s)
			return nil

		case <-tick:
			t := l.now()
			l.machine.Tick(t)
			l.checkHeartbeat(t)
			l.flush(t)

		case r := <-reports:
			t := l.now()
			l.handleReport(r, t)
			l.flush(t)

		case req := <-requests:
			t := l.now()
			err := l.machine.Execute(req.Cmd, t)
			l.flush(t)
			req.Reply(err)

		case locked := <-locks:
			t := l.now()
			l.machine.ReconcileLock(locked, t)
			l.flush(t)
		}
	}
}

func (l *loop) handleReport(r bridge.Report, t time.Time) {
	l.machine.SetConnected(r.Connected, t)
	if r.Connected {
		l.lastSeen = t
		if r.ConnectionChanged {
			l.machine.Sync(r.Update, t)
		} else {
			l.machine.ApplyUpdate(r.Update, t)
		}
		for _, b := range r.Edges {
			if err := l.machine.HandleButton(b, t); err != nil && !errors.Is(err, pacing.ErrLocked) {
				log.Printf("bridge: button %s: %v", b, err)
			}
		}
	}

	h := status.Hardware{
		Connected: r.Connected,
		LastSeen:  l.lastSeen,
		Status:    r.Status,
	}
	if l.baseURL != nil {
		h.BaseURL = l.baseURL()
	}
	l.tracker.SetHardware(h)
}

// flush hands queued hardware writes to the dispatcher, publishes events
// and refreshes the tracker.
func (l *loop) flush(t time.Time) {
	events, cmds := l.machine.Drain()
	l.commands.Submit(cmds...)

	for _, e := range events {
		log.Printf("event: %s mode=%s locked=%v %s", e.Type, e.Mode, e.Locked, e.Detail)
		if l.publisher == nil {
			continue
		}
		if err := l.publisher.Publish(e); err != nil {
			log.Printf("publish error: %v", err)
		}
	}

	l.tracker.RecordEvents(events)
	l.tracker.Update(l.machine.Snapshot(t))
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *loop) checkHeartbeat(t time.Time) {
	if l.heartbeat <= 0 || t.Sub(l.lastHeartbeat) < l.heartbeat {
		return
	}
	l.lastHeartbeat = t

	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	l.tracker.Update(l.machine.Snapshot(t))
	snap := l.tracker.Snapshot()
	log.Printf("heartbeat: uptime=%v mode=%s locked=%v hardware=%v",
		snap.Uptime().Truncate(time.Second), snap.Session.Mode, snap.Session.Locked, snap.Hardware.Connected)

	if l.publisher == nil {
		return
	}
	hb := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := l.publisher.PublishSystem(hb); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *loop) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	if l.publisher == nil {
		return
	}

	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	event := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", signalName),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}
