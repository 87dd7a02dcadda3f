// Command teamctl manages teams and users through the TeamHub API.
//
// Exit status follows the error category of the failed call: validation 2,
// authentication 3, authorization 4, not found 5, conflict 6, business rule
// 7, external service 8, anything else 1.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tbourn/teamhub/internal/apperr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		// cobra's own failures: unknown command, bad flag, wrong arity
		err = apperr.Validation(err.Error(), nil).WithCause(err)
	}
	report(stderr, err)
	return exitCode(err)
}
