package pgtools

import "fmt"

// ToolMissingError reports a PostgreSQL client tool that is not on PATH.
type ToolMissingError struct {
	Tool string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("PostgreSQL tool '%s' not found in PATH. Please install PostgreSQL client tools.", e.Tool)
}

// CloneFailedError reports a failed dump/restore transfer.
type CloneFailedError struct {
	Source string
	Target string
	// Stage is the process that failed: "pg_dump", "psql" or "start".
	Stage  string
	Stderr string
	Err    error
}

func (e *CloneFailedError) Error() string {
	msg := fmt.Sprintf("Clone failed! Check PostgreSQL connection. (%s → %s, %s: %v)", e.Source, e.Target, e.Stage, e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *CloneFailedError) Unwrap() error {
	return e.Err
}
