// Command test-scan is a manual test for the BLE adapter.
// It scans for the configured service and prints the first match.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-scan [--adapter tinygo|hci] [--service UUID] [--timeout 30s]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/blecentral/internal/ble"
)

func main() {
	kind := flag.String("adapter", "tinygo", "BLE backend: tinygo or hci")
	service := flag.String("service", ble.DefaultServiceUUID.String(), "service UUID to scan for")
	timeout := flag.Duration("timeout", 30*time.Second, "give up after this long")
	flag.Parse()

	svc, err := uuid.Parse(*service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid service UUID: %v\n", err)
		os.Exit(2)
	}

	adapter, err := ble.NewAdapter(*kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := adapter.Enable(); err != nil {
		fmt.Fprintf(os.Stderr, "enable adapter: %v\n", err)
		os.Exit(1)
	}

	events := make(chan ble.Event, 16)
	emit := func(ev ble.Event) {
		select {
		case events <- ev:
		default:
		}
	}

	fmt.Printf("Scanning for %s (%s adapter)...\n", svc, *kind)
	fmt.Println("Press Ctrl+C to exit.")
	if err := adapter.Scan(svc, emit); err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}
	defer adapter.StopScan()

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	deadline := time.After(*timeout)
	for {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case ble.ScanMatch:
				fmt.Printf(">>> FOUND %s %q rssi=%d\n", e.Peripheral.Address, e.Peripheral.Name, e.Peripheral.RSSI)
				return
			case ble.AdapterError:
				fmt.Fprintf(os.Stderr, "scan failed: %v\n", e.Err)
				return
			}
		case <-deadline:
			fmt.Println("No peripheral found.")
			return
		case <-sig:
			fmt.Println("\nShutting down...")
			return
		}
	}
}
