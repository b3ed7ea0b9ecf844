package logger

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// ConsolePrefix tags every operator-facing line.
const ConsolePrefix = "[branch_db]"

var (
	successFormat = color.New(color.FgGreen).SprintFunc()
	warningFormat = color.New(color.FgHiYellow).SprintFunc()
	failureFormat = color.New(color.FgHiRed).SprintFunc()
)

// Console prints progress lines for the operator. It is separate from the
// structured log file: console lines are the user interface, the log file is
// for debugging.
type Console struct {
	out    io.Writer
	prefix bool
}

// NewConsole creates a console writing to out. When prefix is false lines are
// printed without the [branch_db] tag.
func NewConsole(out io.Writer, prefix bool) *Console {
	return &Console{out: out, prefix: prefix}
}

// Writer returns the underlying output stream.
func (c *Console) Writer() io.Writer {
	return c.out
}

// Log prints a formatted line.
func (c *Console) Log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.prefix {
		fmt.Fprintf(c.out, "%s %s\n", ConsolePrefix, msg)
		return
	}
	fmt.Fprintln(c.out, msg)
}

// Indented prints a formatted line nested under the previous one.
func (c *Console) Indented(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.prefix {
		fmt.Fprintf(c.out, "%s    %s\n", ConsolePrefix, msg)
		return
	}
	fmt.Fprintf(c.out, "   %s\n", msg)
}

// Success prints a line marked as successful.
func (c *Console) Success(format string, args ...any) {
	c.Log("%s", successFormat("✅ "+fmt.Sprintf(format, args...)))
}

// Warning prints a line marked as a warning.
func (c *Console) Warning(format string, args ...any) {
	c.Log("%s", warningFormat("⚠️  "+fmt.Sprintf(format, args...)))
}

// Failure prints a line marked as failed.
func (c *Console) Failure(format string, args ...any) {
	c.Log("%s", failureFormat("❌ "+fmt.Sprintf(format, args...)))
}
