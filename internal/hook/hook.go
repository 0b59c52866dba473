// Package hook runs external commands configured as argv lists.
//
// Arguments may carry {name} placeholders which are substituted verbatim;
// nothing is passed through a shell.
package hook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrEmptyCommand = errors.New("hook: empty command")

// Runner executes argv and returns its trimmed stdout.
type Runner func(ctx context.Context, argv []string) (string, error)

// Exec is the Runner backed by os/exec. Stderr is folded into the error.
func Exec(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return "", ErrEmptyCommand
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return "", fmt.Errorf("%s: %w", argv[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Expand substitutes {key} placeholders in every argument. The input
// slice is not modified.
func Expand(argv []string, vars map[string]string) []string {
	if len(argv) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}
