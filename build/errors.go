package build

import (
	"errors"
	"strings"
)

// JoinErrors flattens errs into a single error whose message is the
// non-nil elements' messages joined by sep, or nil when every element
// is nil. Error types are not preserved; the result is only good for
// logging, which is all the daemons' shutdown paths need from it.
func JoinErrors(errs []error, sep string) error {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, sep))
}

// ComposeErrors joins errs with "; ": the one-line form used when a
// couple of closely related failures, like a listener close and a
// supervisor stop, should read as a single log entry.
func ComposeErrors(errs ...error) error {
	return JoinErrors(errs, "; ")
}

// ExtendErr prefixes err with s, naming the component a failure came
// from before it is joined with its siblings. A nil err stays nil so
// shutdown sequences can extend every close result unconditionally.
func ExtendErr(s string, err error) error {
	if err == nil {
		return nil
	}
	return errors.New(s + ": " + err.Error())
}
