// Command flowsim runs a stand-in automation flow for webhook testing.
//
// Usage:
//
//	flowsim [flags]
//
// Flags:
//
//	-port        Port to listen on (default: 5678)
//	-host        Host to bind to (default: localhost)
//	-callback    URL replies are posted to (the simulator's /api/receive)
//	-min-delay   Minimum reply delay
//	-max-delay   Maximum reply delay
//	-fail-rate   Percentage of webhook calls rejected with a 500
//	-error-rate  Percentage of replies carrying an error body
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"wasim/flowsim"
)

func main() {
	port := flag.Int("port", 5678, "port to listen on")
	host := flag.String("host", "localhost", "host to bind to")
	callback := flag.String("callback", "", "URL to post replies to")
	minDelay := flag.Duration("min-delay", 0, "minimum reply delay")
	maxDelay := flag.Duration("max-delay", 0, "maximum reply delay")
	failRate := flag.Int("fail-rate", 0, "percentage of webhook calls to fail")
	errorRate := flag.Int("error-rate", 0, "percentage of replies with an error body")
	reply := flag.String("reply", "", "reply body (default: Mensaje procesado)")
	flag.Parse()

	server := flowsim.NewServer(flowsim.Options{
		CallbackURL: *callback,
		MinDelay:    *minDelay,
		MaxDelay:    *maxDelay,
		FailRate:    *failRate,
		ErrorRate:   *errorRate,
		ReplyText:   *reply,
	})
	addr := fmt.Sprintf("%s:%d", *host, *port)

	fmt.Println("Flow Simulator")
	fmt.Println("==============")
	fmt.Printf("Listening on http://%s\n\n", addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health   - Health check")
	fmt.Println("  POST /webhook  - Accept a WhatsApp-style payload and schedule a reply")
	fmt.Println("  GET  /stats    - Received/replied/failed counters")
	fmt.Println()
	if *callback == "" {
		fmt.Println("No --callback set: payloads are acked but never replied to.")
	} else {
		fmt.Printf("Replying to %s after %v-%v\n", *callback, *minDelay, *maxDelay)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		os.Exit(0)
	}()

	log.Fatal(http.ListenAndServe(addr, server.Handler()))
}
