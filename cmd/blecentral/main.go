package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chaz8081/blecentral/internal/ble"
	"github.com/chaz8081/blecentral/internal/ble/protocol"
	"github.com/chaz8081/blecentral/internal/config"
	"github.com/chaz8081/blecentral/internal/console"
	"github.com/chaz8081/blecentral/internal/permission"
	"github.com/chaz8081/blecentral/internal/store"
)

// permissionWait bounds how long startup waits for the operator to answer
// the permission prompt.
const permissionWait = 2 * time.Minute

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blecentral/config.yaml)")
	reconnect := flag.Bool("reconnect", false, "connect to the last saved peripheral on startup")
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote default config to", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	desc, err := ble.ParseDescriptor(cfg.Device.ServiceUUID, cfg.Device.ReadUUID, cfg.Device.WriteUUID, cfg.Device.NotifyUUID, cfg.Device.IndicateUUID)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	adapter, err := ble.NewAdapter(cfg.Adapter)
	if err != nil {
		log.Fatalf("Failed to create BLE adapter: %v", err)
	}

	// The prompt and the console share stdin; the prompt finishes before
	// the console starts reading.
	stdin := bufio.NewReader(os.Stdin)
	var prompter permission.Prompter = &permission.TerminalPrompter{In: stdin, Out: os.Stdout}
	if cfg.Permissions.Mode == "grant" {
		prompter = permission.AutoGrant
	}
	gate := permission.NewManager(adapter.Enable, prompter)
	gate.Check()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), permissionWait)
	status, err := gate.Wait(waitCtx)
	cancelWait()
	if err != nil {
		log.Fatalf("No answer to the permission prompt: %v", err)
	}
	switch status {
	case permission.StatusUnsupported:
		log.Fatalf("Bluetooth is unsupported or disabled on this host.")
	case permission.StatusDenied:
		log.Println("Bluetooth permission denied; scanning is disabled until restart.")
	default:
		log.Println("Bluetooth permission granted")
	}

	machine := ble.NewMachine(adapter, gate, ble.Options{
		Descriptor:        desc,
		OperationTimeout:  cfg.Session.OperationTimeout,
		DisconnectTimeout: cfg.Session.DisconnectTimeout,
		MaxWriteBytes:     cfg.Session.MaxWriteBytes,
		Store:             st,
	})

	states, cancelStates := machine.Subscribe(16)
	defer cancelStates()
	notes, cancelNotes := machine.Notifications(16)
	defer cancelNotes()

	listener := console.NewListener(stdin, os.Stderr)
	go listener.Start()

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	app := &app{cfg: cfg, machine: machine, store: st}
	if *reconnect {
		app.connect("")
	}

	fmt.Println(console.Usage)
	log.Println("Ready! Type a command. Ctrl+C to quit.")

	// Main event loop
	commands := listener.Events()
	for {
		select {
		case cmd, ok := <-commands:
			if !ok || cmd.Type == console.CmdQuit {
				shutdown(listener, machine)
				return
			}
			app.handle(cmd)

		case snap := <-states:
			app.onState(snap)

		case n := <-notes:
			printNotification(n)

		case <-app.scanDeadline:
			app.scanDeadline = nil
			if machine.State() == ble.StateScanning {
				log.Printf("No peripheral found within %s, stopping scan", cfg.Scan.Timeout)
				if err := machine.Disconnect(); err != nil {
					log.Printf("ERROR: stop scan: %v", err)
				}
			}

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			shutdown(listener, machine)
			return
		}
	}
}

type app struct {
	cfg          *config.Config
	machine      *ble.Machine
	store        *store.Store
	scanDeadline <-chan time.Time
}

func (a *app) handle(cmd console.Command) {
	switch cmd.Type {
	case console.CmdScan:
		if err := a.machine.Start(); err != nil {
			reportStartError(err)
			return
		}
		if a.cfg.Scan.Timeout > 0 {
			a.scanDeadline = time.After(a.cfg.Scan.Timeout)
		}

	case console.CmdConnect:
		a.connect(cmd.Address)

	case console.CmdRead:
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Session.OperationTimeout)
		defer cancel()
		text, err := a.machine.ReadText(ctx, ble.RoleRead)
		if err != nil {
			log.Printf("ERROR: read: %v", err)
			return
		}
		fmt.Printf("read: %q\n", text)

	case console.CmdWrite:
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Session.OperationTimeout)
		defer cancel()
		if err := a.machine.WriteText(ctx, ble.RoleWrite, cmd.Text); err != nil {
			log.Printf("ERROR: write: %v", err)
			return
		}
		fmt.Printf("wrote %d bytes: %q\n", len(cmd.Text), protocol.Truncate(cmd.Text, 64))

	case console.CmdNotify:
		a.setNotify(ble.RoleNotify, cmd.Enable)

	case console.CmdIndicate:
		a.setNotify(ble.RoleIndicate, cmd.Enable)

	case console.CmdDisconnect:
		a.scanDeadline = nil
		if err := a.machine.Disconnect(); err != nil {
			log.Printf("ERROR: disconnect: %v", err)
		}

	case console.CmdReset:
		a.scanDeadline = nil
		if err := a.machine.Reset(); err != nil {
			log.Printf("ERROR: reset: %v", err)
		}

	case console.CmdStatus:
		printStatus(a.machine)

	case console.CmdHelp:
		fmt.Println(console.Usage)
	}
}

// connect dials address, or the last saved peripheral when address is empty.
func (a *app) connect(address string) {
	if address == "" {
		saved, ok := a.store.Fetch(store.AddressKey)
		if !ok {
			log.Println("No saved peripheral; run scan first")
			return
		}
		address = saved
	}
	log.Printf("Connecting to %s", address)
	if err := a.machine.ConnectTo(ble.Peripheral{Address: address}); err != nil {
		reportStartError(err)
	}
}

func (a *app) setNotify(role ble.Role, enabled bool) {
	if err := a.machine.SetNotify(role, enabled); err != nil {
		log.Printf("ERROR: %s: %v", role, err)
		return
	}
	state := "off"
	if enabled {
		state = "on"
	}
	fmt.Printf("%s %s\n", role, state)
}

func (a *app) onState(snap ble.Snapshot) {
	if snap.State != ble.StateScanning {
		a.scanDeadline = nil
	}
	line := fmt.Sprintf("state: %s", snap.State)
	if snap.HasPeripheral {
		line += fmt.Sprintf(" (%s %s)", snap.Peripheral.Name, snap.Peripheral.Address)
	}
	if snap.Err != nil {
		line += fmt.Sprintf(": %v", snap.Err)
	}
	fmt.Println(line)

	if snap.State == ble.StateReady {
		roles := make([]string, 0, len(snap.Roles))
		for _, r := range snap.Roles {
			roles = append(roles, r.String())
		}
		fmt.Printf("ready, bound: %s\n", strings.Join(roles, ", "))
	}
}

func reportStartError(err error) {
	var perr *ble.PermissionError
	switch {
	case errors.As(err, &perr):
		log.Printf("ERROR: Bluetooth permission %s", perr.Status)
	case errors.Is(err, ble.ErrUnsupported):
		log.Println("ERROR: Bluetooth is unsupported or disabled")
	default:
		log.Printf("ERROR: %v", err)
	}
}

func printStatus(m *ble.Machine) {
	snap := m.Snapshot()
	fmt.Printf("  State:      %s\n", snap.State)
	if p, ok := m.Peripheral(); ok {
		fmt.Printf("  Peripheral: %s (%s, rssi %d)\n", p.Address, p.Name, p.RSSI)
	}
	for _, b := range m.Bindings() {
		fmt.Printf("  %-9s   %s\n", b.Role.String()+":", b.Ref.Characteristic)
	}
	if snap.Err != nil {
		fmt.Printf("  Last error: %v\n", snap.Err)
	}
}

func printNotification(n ble.Notification) {
	text, err := n.Text()
	if err != nil {
		fmt.Printf("%s: % x (%v)\n", n.Role, n.Value, err)
		return
	}
	fmt.Printf("%s: %q\n", n.Role, text)
}

func shutdown(listener *console.Listener, machine *ble.Machine) {
	listener.Stop()
	if err := machine.Close(); err != nil {
		log.Printf("ERROR: close: %v", err)
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== blecentral ===")
	fmt.Printf("  Adapter:  %s\n", cfg.Adapter)
	fmt.Printf("  Service:  %s\n", cfg.Device.ServiceUUID)
	fmt.Printf("  Scan:     %s timeout\n", cfg.Scan.Timeout)
	fmt.Printf("  Perms:    %s\n", cfg.Permissions.Mode)
	fmt.Printf("  Store:    %s\n", cfg.StorePath)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("==================")
}
