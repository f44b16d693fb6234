package permission

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gotest.tools/assert"
)

func waitStatus(t *testing.T, m *Manager) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := m.Wait(ctx)
	assert.NilError(t, err)
	return s
}

func TestCheckGrants(t *testing.T) {
	m := NewManager(nil, AutoGrant)
	assert.Equal(t, m.Status(), StatusPending)

	m.Check()
	assert.Equal(t, waitStatus(t, m), StatusGranted)
}

func TestCheckUnsupportedIsTerminal(t *testing.T) {
	var prompts atomic.Int32
	prompter := PrompterFunc(func(context.Context, []string) (bool, error) {
		prompts.Add(1)
		return true, nil
	})
	m := NewManager(func() error { return errors.New("no adapter") }, prompter)

	m.Check()
	assert.Equal(t, m.Status(), StatusUnsupported)

	m.RequestIfNeeded()
	m.Check()
	assert.Equal(t, m.Status(), StatusUnsupported)
	assert.Equal(t, prompts.Load(), int32(0))
}

func TestRequestIfNeededDoesNotDuplicatePrompt(t *testing.T) {
	release := make(chan struct{})
	var prompts atomic.Int32
	prompter := PrompterFunc(func(context.Context, []string) (bool, error) {
		prompts.Add(1)
		<-release
		return false, nil
	})
	m := NewManager(nil, prompter)

	m.RequestIfNeeded()
	m.RequestIfNeeded()
	m.RequestIfNeeded()
	close(release)

	assert.Equal(t, waitStatus(t, m), StatusDenied)
	assert.Equal(t, prompts.Load(), int32(1))
}

func TestDeniedCanBeRequestedAgain(t *testing.T) {
	answers := make(chan bool, 2)
	answers <- false
	answers <- true
	m := NewManager(nil, PrompterFunc(func(context.Context, []string) (bool, error) {
		return <-answers, nil
	}))

	m.RequestIfNeeded()
	assert.Equal(t, waitStatus(t, m), StatusDenied)

	// Give the prompt goroutine a moment to clear its in-flight flag.
	deadline := time.Now().Add(time.Second)
	for m.requesting.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	m.RequestIfNeeded()
	assert.Equal(t, waitStatus(t, m), StatusGranted)
}

func TestPromptErrorIsDenial(t *testing.T) {
	m := NewManager(nil, PrompterFunc(func(context.Context, []string) (bool, error) {
		return true, errors.New("tty closed")
	}))
	m.RequestIfNeeded()
	assert.Equal(t, waitStatus(t, m), StatusDenied)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	m := NewManager(nil, AutoGrant)
	ch, cancel := m.Subscribe(4)
	defer cancel()

	assert.Equal(t, <-ch, StatusPending)
	m.Check()

	deadline := time.After(time.Second)
	for {
		select {
		case s := <-ch:
			if s == StatusGranted {
				return
			}
		case <-deadline:
			t.Fatal("never observed granted status")
		}
	}
}

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"y", true}, // no trailing newline at EOF
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := &TerminalPrompter{In: bufio.NewReader(strings.NewReader(tt.input)), Out: &out}
			got, err := p.Prompt(context.Background(), Capabilities)
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
			assert.Assert(t, strings.Contains(out.String(), "bluetooth-scan"))
		})
	}
}

func TestTerminalPrompterEOF(t *testing.T) {
	p := &TerminalPrompter{In: bufio.NewReader(strings.NewReader("")), Out: &bytes.Buffer{}}
	_, err := p.Prompt(context.Background(), Capabilities)
	assert.ErrorContains(t, err, "read answer")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, StatusGranted.String(), "granted")
	assert.Equal(t, StatusUnsupported.String(), "unsupported")
	assert.Equal(t, Status(99).String(), "unknown")
}
