// Command panel-adapter serves the pacemaker front panel (rotary encoder and
// buttons on GPIO) over the hardware adapter HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/pacemaker-panel/internal/adapter"
	"github.com/sweeney/pacemaker-panel/internal/frontpanel"
	"github.com/sweeney/pacemaker-panel/internal/gpio"
)

func main() {
	addr := flag.String("http", ":5000", "Adapter API address")
	poll := flag.Duration("poll", 2*time.Millisecond, "GPIO sampling interval")
	debounce := flag.Duration("debounce", 30*time.Millisecond, "Button debounce duration")
	chip := flag.String("chip", "gpiochip0", "GPIO chip name")
	pins := gpio.DefaultPins
	flag.IntVar(&pins.EncoderA, "pin-enc-a", pins.EncoderA, "BCM pin for encoder channel A")
	flag.IntVar(&pins.EncoderB, "pin-enc-b", pins.EncoderB, "BCM pin for encoder channel B")
	flag.IntVar(&pins.Up, "pin-up", pins.Up, "BCM pin for the up button")
	flag.IntVar(&pins.Down, "pin-down", pins.Down, "BCM pin for the down button")
	flag.IntVar(&pins.Left, "pin-left", pins.Left, "BCM pin for the left button")
	flag.IntVar(&pins.Emergency, "pin-emergency", pins.Emergency, "BCM pin for the emergency button")
	simulate := flag.Bool("simulate", false, "Run without GPIO (idle front panel)")
	printState := flag.Bool("print-state", false, "Print current line levels and exit")

	flag.Parse()

	if err := run(*addr, *poll, *debounce, *chip, pins, *simulate, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(addr string, poll, debounce time.Duration, chip string, pins gpio.Pins, simulate, printState bool) error {
	reader, err := openReader(chip, pins, simulate)
	if err != nil {
		return err
	}
	defer reader.Close()

	if printState {
		l, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("A: %v, B: %v, up: %v, down: %v, left: %v, emergency: %v\n",
			l.EncoderA, l.EncoderB, l.Up, l.Down, l.Left, l.Emergency)
		return nil
	}

	panel := frontpanel.New(debounce)
	srv := adapter.New(addr, panel)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("adapter: http server error: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())

	log.Printf("started: http=%s poll=%v debounce=%v simulate=%v", addr, poll, debounce, simulate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = panel.Scan(ctx, reader, poll, time.Now)
	log.Printf("shutting down")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func openReader(chip string, pins gpio.Pins, simulate bool) (gpio.Reader, error) {
	if simulate {
		return gpio.NewFakeReader(gpio.Levels{}), nil
	}
	r, err := gpio.NewRealReader(chip, pins)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	return r, nil
}
