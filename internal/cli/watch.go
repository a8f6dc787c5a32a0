package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/planbuilder/internal/editor"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/notify"
	"github.com/roach88/planbuilder/internal/saga"
)

var errQuit = errors.New("quit")

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [collection]",
		Short: "Edit a collection interactively",
		Long: `Open a collection and read gestures from stdin, one per line:

  move <from> <to>     reorder locally; saved after the quiet period
  reorder <id>...      replace the whole order
  delete <id>          start a cascade delete
  add <title> [thumb]  start an insert
  flush                save a pending reorder now
  refresh              re-read the collection
  show                 print the local order
  quit                 save pending work and exit

Notifications are printed as they arrive. Ctrl-C or end of input exits
after saving a pending reorder.`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := opts.collectionArgs(args, 0)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), opts, id, cmd)
		},
	}
}

// console serializes writes from the gesture loop and view callbacks.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func runWatch(ctx context.Context, opts *RootOptions, collection string, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := notify.NewChannel(64)
	s, err := openSession(ctx, opts, collection, events)
	if err != nil {
		return err
	}
	defer s.Close()

	out := &console{w: cmd.OutOrStdout()}
	out.printf("%s\n", strings.Join(s.editor.Snapshot().IDs(), " "))

	last := strings.Join(s.editor.Snapshot().IDs(), " ")
	var lastMu sync.Mutex
	unsubscribe := s.editor.Subscribe(func(v editor.View) {
		order := strings.Join(v.Snapshot.IDs(), " ")
		lastMu.Lock()
		changed := order != last
		last = order
		lastMu.Unlock()
		if changed {
			out.printf("order: %s\n", order)
		}
	})
	defer unsubscribe()

	// The reader blocks on stdin and cannot be interrupted, so it runs
	// outside the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var runs []*saga.Run
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-events.C():
				printEvent(out, ev)
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				run, err := execGesture(gctx, s, line, out)
				if run != nil {
					runs = append(runs, run)
				}
				if err != nil {
					return err
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		err = nil
	}

	for _, run := range runs {
		<-run.Done()
	}
	if ferr := s.editor.Flush(context.Background()); ferr != nil {
		out.printf("error: failed to save order: %v\n", ferr)
	}
	drainEvents(out, events)
	return err
}

func printEvent(out *console, ev notify.Event) {
	if ev.Token != "" {
		out.printf("[%s] %s (%s %s)\n", ev.Kind, ev.Message, ev.Source, ev.Token)
		return
	}
	out.printf("[%s] %s (%s)\n", ev.Kind, ev.Message, ev.Source)
}

func drainEvents(out *console, events *notify.Channel) {
	for {
		select {
		case ev := <-events.C():
			printEvent(out, ev)
		default:
			return
		}
	}
}

// execGesture runs one input line and returns the saga run it started, if
// any. Rejected gestures are reported and the loop continues; errQuit ends
// it.
func execGesture(ctx context.Context, s *session, line string, out *console) (*saga.Run, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	var (
		run *saga.Run
		err error
	)
	switch fields[0] {
	case "quit", "exit":
		return nil, errQuit
	case "move":
		if len(fields) != 3 {
			err = errors.New("usage: move <from> <to>")
			break
		}
		from, ferr := strconv.Atoi(fields[1])
		to, terr := strconv.Atoi(fields[2])
		if ferr != nil || terr != nil {
			err = errors.New("usage: move <from> <to>")
			break
		}
		err = s.editor.Move(from, to)
	case "reorder":
		err = s.editor.Reorder(fields[1:])
	case "delete":
		if len(fields) != 2 {
			err = errors.New("usage: delete <id>")
			break
		}
		run, err = s.editor.Delete(ctx, fields[1])
	case "add":
		if len(fields) < 2 {
			err = errors.New("usage: add <title> [thumbnail]")
			break
		}
		payload := ir.IRObject{ir.FieldTitle: ir.IRString(fields[1])}
		if len(fields) > 2 {
			payload[ir.FieldThumbnail] = ir.IRString(fields[2])
		}
		run, err = s.editor.Insert(ctx, payload)
	case "flush":
		err = s.editor.Flush(ctx)
	case "refresh":
		err = s.editor.Refresh(ctx)
	case "show":
		v := s.editor.View()
		out.printf("%s", renderCollection(v.Aggregate, v.Snapshot))
		if v.MutationPending || v.CascadePending {
			out.printf("  pending: reorder=%t cascade=%t\n", v.MutationPending, v.CascadePending)
		}
	default:
		err = fmt.Errorf("unknown gesture %q", fields[0])
	}

	if err != nil {
		out.printf("error: %v\n", err)
	}
	return run, nil
}
