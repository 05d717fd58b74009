// Package args interprets load command tokens: a syntax state machine that
// fills source and destination records, followed by semantic inference
// that completes short-hand invocations such as "--sym uImage".
package args

import (
	"fmt"
	"slices"

	"github.com/bamsammich/gload/internal/endpoint"
)

// Record is one side of a transfer as written on the command line.
type Record struct {
	Device string
	Fmt    string
	Sym    string
}

// Result is the outcome of interpreting a token list.
type Result struct {
	Source Record
	Dest   Record
	Extras endpoint.Extras
	Force  bool
}

func (r Result) String() string {
	return fmt.Sprintf("--if %s --fmt %s --sym %s\n--of %s --fmt %s --sym %s\n--extra 0x%x",
		r.Source.Device, r.Source.Fmt, r.Source.Sym,
		r.Dest.Device, r.Dest.Fmt, r.Dest.Sym,
		uint8(r.Extras))
}

// ParseError is a malformed token list.
type ParseError struct {
	Option string // option left without a value, if any
	Token  string // unrecognized token, if any
	Reason string
}

func (e *ParseError) Error() string {
	switch {
	case e.Option != "":
		return fmt.Sprintf("syntax error: %s needs a parameter", e.Option)
	case e.Token != "":
		return fmt.Sprintf("syntax error: unknown option %q", e.Token)
	default:
		return "syntax error: " + e.Reason
	}
}

var options = []string{
	"--if", "--of", "--fmt", "--sym",
	"--decompress", "--securecheck", "--ubootsecure", "--force",
}

// IsOption reports whether tok is one of the load option tokens.
func IsOption(tok string) bool {
	return slices.Contains(options, tok)
}

type state int

const (
	stateParseOpt state = iota
	stateParseDevice
	stateParseFmt
	stateParseSymbol
	stateIndicateDecompress
	stateIndicateSecure
	stateForceRun
	stateDone
)

// Syntax runs the token state machine. --if and --of move focus between
// the source and destination records; --fmt, --sym and device values
// apply to the record in focus, which starts as the source.
func Syntax(tokens []string) (Result, error) {
	var res Result
	focus := &res.Source
	pos := 0
	opt := ""

	// value consumes the token after opt.
	value := func() (string, error) {
		if pos >= len(tokens) {
			return "", &ParseError{Option: opt, Reason: "missing parameter"}
		}
		v := tokens[pos]
		pos++
		return v, nil
	}

	st := stateParseOpt
	for st != stateDone {
		switch st {
		case stateParseOpt:
			if pos >= len(tokens) {
				st = stateDone
				continue
			}
			opt = tokens[pos]
			pos++
			switch opt {
			case "--if":
				focus = &res.Source
				st = stateParseDevice
			case "--of":
				focus = &res.Dest
				st = stateParseDevice
			case "--fmt":
				st = stateParseFmt
			case "--sym":
				st = stateParseSymbol
			case "--decompress":
				st = stateIndicateDecompress
			case "--securecheck", "--ubootsecure":
				st = stateIndicateSecure
			case "--force":
				st = stateForceRun
			default:
				return res, &ParseError{Token: opt, Reason: "unknown option"}
			}

		case stateParseDevice:
			v, err := value()
			if err != nil {
				return res, err
			}
			focus.Device = v
			st = stateParseOpt

		case stateParseFmt:
			v, err := value()
			if err != nil {
				return res, err
			}
			focus.Fmt = v
			st = stateParseOpt

		case stateParseSymbol:
			v, err := value()
			if err != nil {
				return res, err
			}
			focus.Sym = v
			st = stateParseOpt

		case stateIndicateDecompress:
			res.Extras |= endpoint.Decompress
			st = stateParseOpt

		case stateIndicateSecure:
			res.Extras |= endpoint.SecureVerify
			st = stateParseOpt

		case stateForceRun:
			res.Force = true
			st = stateParseOpt
		}
	}
	return res, nil
}
