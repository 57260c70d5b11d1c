package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
)

// toolsNeverPrompted never touch anything outside the conversation.
var toolsNeverPrompted = map[string]bool{
	"read_file":  true,
	"list_files": true,
	"invalid":    true,
	"task":       true,
}

// interactiveChecker asks on the terminal before a mutating tool runs.
// Answering "a" remembers the decision for the rest of the session.
type interactiveChecker struct {
	ui *input.UI

	mu     sync.Mutex
	always map[string]bool
}

func newPermissionChecker() tools.PermissionChecker {
	if viper.GetBool("yes") || !isatty.IsTerminal(os.Stdin.Fd()) {
		return tools.AllowAllPermissions()
	}
	return &interactiveChecker{
		ui:     &input.UI{Writer: os.Stderr, Reader: os.Stdin},
		always: map[string]bool{},
	}
}

func (c *interactiveChecker) Check(_ context.Context, toolName string, args map[string]any) (tools.PermissionDecision, error) {
	if toolsNeverPrompted[toolName] {
		return tools.PermissionAllow, nil
	}
	c.mu.Lock()
	remembered := c.always[toolName]
	c.mu.Unlock()
	if remembered {
		return tools.PermissionAllow, nil
	}

	query := fmt.Sprintf("\nAllow tool %q with arguments %v? [y/n/a]", toolName, args)
	answer, err := c.ui.Ask(query, &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N", "a", "A":
				return nil
			default:
				return fmt.Errorf("please enter 'y', 'n' or 'a'")
			}
		},
	})
	if err != nil {
		return tools.PermissionDeny, err
	}

	switch answer {
	case "a", "A":
		c.mu.Lock()
		c.always[toolName] = true
		c.mu.Unlock()
		return tools.PermissionAllow, nil
	case "y", "Y":
		return tools.PermissionAllow, nil
	default:
		return tools.PermissionDeny, nil
	}
}
