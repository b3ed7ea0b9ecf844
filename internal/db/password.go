package db

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/milkstrawai/branch-db/internal/config"
	"golang.org/x/term"
)

// PasswordSource resolves database passwords.
type PasswordSource struct {
	// Prompt enables the interactive fallback.
	Prompt bool
	// Stdin is the terminal read for the interactive prompt.
	Stdin *os.File
	// Stderr receives the prompt text.
	Stderr io.Writer
}

// Resolve retrieves the password for one database using the following precedence:
// 1. Password set in the config file
// 2. Execute password_command if configured
// 3. Use PGPASSWORD environment variable if set
// 4. Prompt interactively, when enabled
// Otherwise the password is empty (trust or .pgpass authentication).
func (s PasswordSource) Resolve(name string, cfg config.DatabaseConfig) (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}

	if cfg.PasswordCommand != "" {
		password, err := executePasswordCommand(cfg.PasswordCommand)
		if err != nil {
			return "", fmt.Errorf("password command for %s failed: %w", name, err)
		}
		return password, nil
	}

	// Try PGPASSWORD environment variable (even if empty)
	if password, ok := os.LookupEnv("PGPASSWORD"); ok {
		return password, nil
	}

	if s.Prompt {
		password, err := s.promptForPassword(fmt.Sprintf("Password for %s database: ", name))
		if err != nil {
			return "", fmt.Errorf("interactive password prompt failed: %w", err)
		}
		return password, nil
	}

	return "", nil
}

// executePasswordCommand executes the configured password command with a 5-second timeout
func executePasswordCommand(command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Parse command - split on spaces
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", fmt.Errorf("empty password command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after 5 seconds")
		}
		return "", fmt.Errorf("command failed: %w (stderr: %s)", err, stderr.String())
	}

	password := strings.TrimSpace(stdout.String())
	if password == "" {
		return "", fmt.Errorf("command returned empty password")
	}

	return password, nil
}

// promptForPassword reads a password with hidden input.
func (s PasswordSource) promptForPassword(prompt string) (string, error) {
	stdin, stderr := s.Stdin, s.Stderr
	if stdin == nil {
		stdin = os.Stdin
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	fd := int(stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}

	fmt.Fprint(stderr, prompt)
	passwordBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(stderr) // Print newline after password input

	password := string(passwordBytes)
	if password == "" {
		return "", fmt.Errorf("empty password entered")
	}

	return password, nil
}
