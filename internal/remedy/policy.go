package remedy

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ApprovalPolicy decides whether a planned action may mutate the store.
// It decouples the executor from terminal I/O: interactive runs plug in
// PromptUser, unattended runs AutoApprove, and rehearsals AutoReject.
type ApprovalPolicy interface {
	Approve(a Action) (bool, error)
}

// AutoApprove approves every action.
type AutoApprove struct{}

func (AutoApprove) Approve(Action) (bool, error) { return true, nil }

// AutoReject declines every action.
type AutoReject struct{}

func (AutoReject) Approve(Action) (bool, error) { return false, nil }

// PromptUser asks for per-item confirmation on the wired terminal.
type PromptUser struct {
	In  *bufio.Reader
	Out io.Writer
}

// Approve prints the action context and reads a y/n answer. Anything that
// is not an explicit yes declines the item.
func (p PromptUser) Approve(a Action) (bool, error) {
	fmt.Fprintf(p.Out, "%s\napply? [y/N] ", a.Describe())
	line, err := p.In.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
