package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// TerminalPrompter asks for capabilities on a terminal and accepts "y" or "yes".
type TerminalPrompter struct {
	In  *bufio.Reader
	Out io.Writer
}

// Prompt prints the request and reads one answer line. Anything other than
// an explicit yes is a denial.
func (p *TerminalPrompter) Prompt(ctx context.Context, capabilities []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.Out, "Allow access to %s? [y/N] ", strings.Join(capabilities, ", "))

	line, err := p.In.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("permission: read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
