package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gwos/unit/duration"
	"github.com/gwos/unit/tagged"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("invalid usage")

func parseCmd(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: expected duration text", errUsage)
	}
	var ee []error
	for _, arg := range args {
		d, err := duration.Parse(arg)
		if err != nil {
			ee = append(ee, err)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "%d\t%s\n", d.Nanoseconds(), d)
	}
	return errors.Join(ee...)
}

func formatCmd(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("format", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	unit := flags.String("unit", "ns", "unit of the counts: ns|ms")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("%w: expected count", errUsage)
	}
	var of func(uint64) (duration.Duration, error)
	switch *unit {
	case "ns":
		of = func(n uint64) (duration.Duration, error) { return duration.Nanoseconds(n), nil }
	case "ms":
		of = duration.Milliseconds
	default:
		return fmt.Errorf("%w: unknown unit %q", errUsage, *unit)
	}
	var ee []error
	for _, arg := range flags.Args() {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			ee = append(ee, fmt.Errorf("%w: %w", duration.ErrSyntax, err))
			continue
		}
		d, err := of(n)
		if err != nil {
			ee = append(ee, err)
			continue
		}
		_, _ = fmt.Fprintln(stdout, d)
	}
	return errors.Join(ee...)
}

func readCmd(args []string, stdin io.Reader, stdout io.Writer) error {
	var (
		data []byte
		err  error
	)
	switch len(args) {
	case 0:
		data, err = io.ReadAll(stdin)
	case 1:
		data, err = os.ReadFile(args[0])
	default:
		return fmt.Errorf("%w: expected at most one file", errUsage)
	}
	if err != nil {
		return err
	}
	literals, err := tagged.Extract(string(data))
	if err != nil {
		return err
	}
	for _, lit := range literals {
		if d, ok := lit.Value.(duration.Duration); ok {
			_, _ = fmt.Fprintf(stdout, "%d\t%s\t%s\t%d\n", lit.Offset, lit.Tag, d, d.Nanoseconds())
			continue
		}
		_, _ = fmt.Fprintf(stdout, "%d\t%s\t%s\n", lit.Offset, lit.Tag, strconv.Quote(lit.Payload))
	}
	return nil
}
