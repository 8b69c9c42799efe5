package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/services/device"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: device [flags] start|stop|get|watch\n\n")
	flag.PrintDefaults()
}

func main() {
	addr := flag.String("addr", envOr("DEVICE_GRPC_ADDR", "localhost:50051"), "irrigation gRPC address")
	zone := flag.StringP("zone", "z", envOr("AREA_ID", "area-tn-001"), "zone id")
	minutes := flag.Float64P("minutes", "m", 0, "duration of a timed start in minutes (0 = until stop)")
	timeout := flag.Duration("timeout", 5*time.Second, "timeout of unary calls")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()
	client := device.NewClient(conn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch strings.ToLower(flag.Arg(0)) {
	case "start":
		callCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		res, err := client.StartIrrigation(callCtx, *zone, *minutes)
		if err != nil {
			log.Fatalf("start: %v", err)
		}
		printResult(res)
	case "stop":
		callCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		res, err := client.StopIrrigation(callCtx, *zone)
		if err != nil {
			log.Fatalf("stop: %v", err)
		}
		printResult(res)
	case "get":
		callCtx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		snap, err := client.GetZone(callCtx, *zone)
		if err != nil {
			log.Fatalf("get: %v", err)
		}
		printJSON(snap)
	case "watch":
		err := client.WatchZone(ctx, *zone, func(snap map[string]any) error {
			printJSON(snap)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Fatalf("watch: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func printResult(res device.CommandResult) {
	fmt.Printf("success=%t delivered=%t ticket=%s\n%s\n", res.Success, res.Delivered, res.TicketID, res.Message)
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("encode: %v", err)
		return
	}
	fmt.Println(string(b))
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
