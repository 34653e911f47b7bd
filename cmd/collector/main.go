// Command collector joins the collar telemetry group and logs each decoded
// record.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dogspeed/internal/config"
	"dogspeed/internal/telemetry"
	"dogspeed/internal/udp"
)

func main() {
	var addr string
	flag.StringVar(&addr, "listen", config.DefaultDest, "Multicast group (or unicast address) and port to receive on")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l, err := udp.Listen(addr)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}
	defer l.Close()
	log.Printf("collector listening addr=%s", addr)

	if err := collect(ctx, l, func(rec telemetry.Record) { log.Print(format(rec)) }); err != nil && ctx.Err() == nil {
		log.Printf("collector stopped: %v", err)
	}
}
