package build

import (
	"fmt"
	"os"
	"runtime/debug"
)

// report prints a prefixed message, with a stack trace outside testing
// builds, and panics when DEBUG is set.
func report(prefix, guidance string, v []interface{}) {
	s := prefix + fmt.Sprintln(v...) + guidance
	if Release != "testing" {
		debug.PrintStack()
		os.Stderr.WriteString(s)
	}
	if DEBUG {
		panic(s)
	}
}

// Critical should be called when a sanity check fails, indicating a bug
// in the coordinator itself. In DEBUG builds the process aborts on the
// spot; in standard builds the failed check is logged with a stack
// trace and the daemon keeps serving, since an invariant violation in
// one subsystem is not worth taking every operator session down with
// it.
func Critical(v ...interface{}) {
	report("Critical error: ", "This indicates a bug in the coordinator; please file an issue.\n", v)
}

// Severe flags serious trouble in the process's environment, like disk
// failure or an entropy source running dry, where crashing is not
// strictly required to preserve integrity.
func Severe(v ...interface{}) {
	report("Severe error: ", "", v)
}
