package console

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"scan", Command{Type: CmdScan}},
		{"  SCAN  ", Command{Type: CmdScan}},
		{"connect", Command{Type: CmdConnect}},
		{"connect AA:BB:CC:DD:EE:FF", Command{Type: CmdConnect, Address: "AA:BB:CC:DD:EE:FF"}},
		{"read", Command{Type: CmdRead}},
		{"write", Command{Type: CmdWrite, Text: "Hello World"}},
		{"write héllo  there", Command{Type: CmdWrite, Text: "héllo  there"}},
		{"notify on", Command{Type: CmdNotify, Enable: true}},
		{"notify OFF", Command{Type: CmdNotify}},
		{"indicate on", Command{Type: CmdIndicate, Enable: true}},
		{"disconnect", Command{Type: CmdDisconnect}},
		{"reset", Command{Type: CmdReset}},
		{"status", Command{Type: CmdStatus}},
		{"help", Command{Type: CmdHelp}},
		{"quit", Command{Type: CmdQuit}},
		{"exit", Command{Type: CmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		line    string
		wantErr string
	}{
		{"", "empty command"},
		{"fly", "unknown command"},
		{"notify", "expects on or off"},
		{"indicate maybe", "expects on or off"},
		{"read now", "takes no arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := Parse(tt.line)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.line)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse(%q) error = %q, want containing %q", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestCommandTypeString(t *testing.T) {
	if CmdQuit.String() != "quit" {
		t.Errorf("CmdQuit.String() = %q", CmdQuit.String())
	}
	if CmdIndicate.String() != "indicate" {
		t.Errorf("CmdIndicate.String() = %q", CmdIndicate.String())
	}
	if got := CommandType(99).String(); got != "command(99)" {
		t.Errorf("CommandType(99).String() = %q", got)
	}
}

func collect(t *testing.T, l *Listener) []Command {
	t.Helper()
	var got []Command
	timeout := time.After(2 * time.Second)
	for {
		select {
		case cmd, ok := <-l.Events():
			if !ok {
				return got
			}
			got = append(got, cmd)
		case <-timeout:
			t.Fatal("listener did not close its channel")
		}
	}
}

func TestListenerEmitsCommandsAndSkipsErrors(t *testing.T) {
	in := strings.NewReader("scan\n\nbogus\nwrite hi\nnotify on\n")
	var errOut bytes.Buffer
	l := NewListener(in, &errOut)
	go l.Start()

	got := collect(t, l)
	want := []Command{
		{Type: CmdScan},
		{Type: CmdWrite, Text: "hi"},
		{Type: CmdNotify, Enable: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d commands %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Errorf("errOut = %q, want parse error", errOut.String())
	}
}

func TestListenerStopsAtQuit(t *testing.T) {
	l := NewListener(strings.NewReader("status\nquit\nscan\n"), &bytes.Buffer{})
	go l.Start()

	got := collect(t, l)
	if len(got) != 2 || got[1].Type != CmdQuit {
		t.Fatalf("got %+v, want status then quit", got)
	}
}

func TestListenerStop(t *testing.T) {
	// More commands than the channel buffers, with nobody reading.
	in := strings.NewReader(strings.Repeat("status\n", 64))
	l := NewListener(in, &bytes.Buffer{})

	finished := make(chan struct{})
	go func() {
		l.Start()
		close(finished)
	}()

	l.Stop()
	l.Stop() // idempotent

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
