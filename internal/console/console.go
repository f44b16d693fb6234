// Package console reads operator commands from a line-oriented input and
// emits them as events, one per line.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CommandType is the action an operator asked for.
type CommandType int

const (
	CmdScan CommandType = iota
	CmdConnect
	CmdRead
	CmdWrite
	CmdNotify
	CmdIndicate
	CmdDisconnect
	CmdReset
	CmdStatus
	CmdHelp
	CmdQuit
)

var commandNames = map[string]CommandType{
	"scan":       CmdScan,
	"connect":    CmdConnect,
	"read":       CmdRead,
	"write":      CmdWrite,
	"notify":     CmdNotify,
	"indicate":   CmdIndicate,
	"disconnect": CmdDisconnect,
	"reset":      CmdReset,
	"status":     CmdStatus,
	"help":       CmdHelp,
	"quit":       CmdQuit,
	"exit":       CmdQuit,
}

func (c CommandType) String() string {
	names := [...]string{"scan", "connect", "read", "write", "notify", "indicate", "disconnect", "reset", "status", "help", "quit"}
	if c >= 0 && int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Command is emitted on the channel returned by Events.
type Command struct {
	Type    CommandType
	Text    string // payload for write
	Address string // optional target for connect
	Enable  bool   // for notify and indicate
}

// Usage lists the accepted commands.
const Usage = `commands:
  scan                 start scanning for the peripheral
  connect [address]    connect to address, or the last saved peripheral
  read                 read the read characteristic
  write [text]         write text (default "Hello World")
  notify on|off        toggle notifications
  indicate on|off      toggle indications
  disconnect           end the session
  reset                return to idle from any state
  status               print the session state
  quit                 exit`

// DefaultWriteText is sent by a bare "write".
const DefaultWriteText = "Hello World"

// Parse converts one input line to a Command.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("console: empty command")
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	t, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return Command{}, fmt.Errorf("console: unknown command %q", name)
	}
	cmd := Command{Type: t}

	switch t {
	case CmdWrite:
		cmd.Text = rest
		if cmd.Text == "" {
			cmd.Text = DefaultWriteText
		}
	case CmdConnect:
		cmd.Address = rest
	case CmdNotify, CmdIndicate:
		switch strings.ToLower(rest) {
		case "on":
			cmd.Enable = true
		case "off":
			cmd.Enable = false
		default:
			return Command{}, fmt.Errorf("console: %s expects on or off, got %q", name, rest)
		}
	default:
		if rest != "" {
			return Command{}, fmt.Errorf("console: %s takes no arguments", name)
		}
	}
	return cmd, nil
}

// Listener reads commands from an input stream.
type Listener struct {
	in     io.Reader
	errOut io.Writer
	ch     chan Command
	done   chan struct{}
	once   sync.Once
}

// NewListener creates a Listener reading from in. Parse errors are
// reported on errOut and the line is skipped.
func NewListener(in io.Reader, errOut io.Writer) *Listener {
	return &Listener{
		in:     in,
		errOut: errOut,
		ch:     make(chan Command, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the channel that receives commands.
// The channel is closed when input ends or Stop is called.
func (l *Listener) Events() <-chan Command {
	return l.ch
}

// Start reads input until EOF or Stop. It blocks; run it in a goroutine.
func (l *Listener) Start() {
	defer close(l.ch)

	scanner := bufio.NewScanner(l.in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := Parse(line)
		if err != nil {
			fmt.Fprintln(l.errOut, err)
			continue
		}
		select {
		case l.ch <- cmd:
		case <-l.done:
			return
		}
		if cmd.Type == CmdQuit {
			return
		}
	}
}

// Stop terminates the listener. It is safe to call multiple times.
// A Start blocked on reading returns once the next line arrives.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
