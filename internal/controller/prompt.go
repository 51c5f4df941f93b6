package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tra-project/tra/internal/banner"
)

// Prompt reads line-oriented operator commands from in and dispatches them
// against Commands (spec.md §6, "Operator commands"): "sync <from_id>
// <to_id> <rel_path>" and "tree <id>". Unrecognized input and malformed
// arguments are reported and skipped rather than aborting the loop.
type Prompt struct {
	Commands *Commands
	Banner   *banner.Printer
}

// Run reads commands from in until EOF or ctx is cancelled, writing command
// output and usage errors to out. Each sync or tree command that gets past
// argument parsing also gets a pass/fail banner through Banner. Cancellation
// is noticed when the next line arrives.
func (p *Prompt) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.dispatch(ctx, line, out)
	}
	return scanner.Err()
}

func (p *Prompt) dispatch(ctx context.Context, line string, out io.Writer) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "sync":
		p.runSync(ctx, fields[1:], out)
	case "tree":
		p.runTree(ctx, fields[1:], out)
	default:
		fmt.Fprintf(out, "unrecognized command %q\n", fields[0])
	}
}

func (p *Prompt) runSync(ctx context.Context, args []string, out io.Writer) {
	if len(args) != 3 {
		fmt.Fprintln(out, "usage: sync <from_id> <to_id> <rel_path>")
		return
	}
	fromID, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	toID, err := parseID(args[1])
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	relPath := args[2]

	err = p.Commands.Sync(ctx, fromID, toID, relPath)
	p.Banner.Report(decisionFor(err), relPath, 0, err)
}

func (p *Prompt) runTree(ctx context.Context, args []string, out io.Writer) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: tree <id>")
		return
	}
	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	err = p.Commands.Tree(ctx, id, out)
	p.Banner.Report(decisionFor(err), fmt.Sprintf("replica %d", id), 0, err)
}

func parseID(s string) (int32, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid replica id %q", s)
	}
	return int32(v), nil
}

// decisionFor gives a command's coarse pass/fail result a banner.Decision to
// print under. The controller sees only one outcome per command, unlike a
// replica's per-node decisions, so Create (a command moved or surfaced data)
// and Conflict (it failed) are the only two outcomes it ever reports.
func decisionFor(err error) banner.Decision {
	if err != nil {
		return banner.Conflict
	}
	return banner.Create
}
