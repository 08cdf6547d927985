// modulesim runs the firmware core against the simulated instrument,
// serving the host text protocol on a serial port or stdio. Useful for
// exercising host software without hardware.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/morefigs/opentrons-modules/pkg/config"
	"github.com/morefigs/opentrons-modules/pkg/hostport"
	"github.com/morefigs/opentrons-modules/pkg/messages"
	"github.com/morefigs/opentrons-modules/pkg/sim"
	"github.com/morefigs/opentrons-modules/pkg/tasks"
)

type options struct {
	Port      string `short:"p" long:"port" description:"serial port to serve the host protocol on (stdio when empty)"`
	Config    string `short:"c" long:"config" default:"config.yaml" description:"configuration file path"`
	TickMS    int    `long:"tick" default:"100" description:"control loop period in milliseconds"`
	ListPorts bool   `long:"list-ports" description:"list available serial ports and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}

	if opts.ListPorts {
		ports, err := hostport.Ports()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ts := tasks.New(cfg)
	inst := sim.New(cfg)

	var (
		lines <-chan string
		write func(p []byte) error
	)
	if opts.Port != "" {
		link := hostport.New(opts.Port, cfg.Serial.BaudRate, 0)
		if err := link.Connect(); err != nil {
			log.Fatalf("Failed to open host port: %v", err)
		}
		defer link.Close()
		lines = link.Lines()
		write = link.Write
	} else {
		ch := make(chan string, hostport.DefaultBufferSize)
		go func() {
			defer close(ch)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				ch <- scanner.Text()
			}
		}()
		lines = ch
		write = func(p []byte) error {
			_, err := os.Stdout.Write(p)
			return err
		}
	}

	tickPeriod := time.Duration(opts.TickMS) * time.Millisecond
	dt := tickPeriod.Seconds()
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	tx := make([]byte, 256)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !ts.CommsQueue.TrySend(messages.IncomingMessageFromHost{Line: line}) {
				log.Printf("Comms queue full, dropping command line")
			}
		case <-ticker.C:
			readings := inst.Step(dt)
			ts.ThermalQueue.TrySend(readings)

			for ts.ThermalQueue.HasMessage() {
				ts.Thermal.RunOnce(inst)
			}
			for ts.SystemQueue.HasMessage() {
				ts.System.RunOnce(inst)
			}
			ts.Thermal.Tick(dt, inst)

			for ts.CommsQueue.HasMessage() {
				n := ts.Comms.RunOnce(tx)
				if n > 0 {
					if err := write(tx[:n]); err != nil {
						log.Printf("Failed to write response: %v", err)
					}
				}
			}
		}
	}
}
