package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/planbuilder/internal/editor"
	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/saga"
)

// EditResult is the payload of add, move and delete.
type EditResult struct {
	Collection string       `json:"collection"`
	Item       string       `json:"item,omitempty"`
	RunToken   string       `json:"run_token,omitempty"`
	States     []string     `json:"states,omitempty"`
	Aggregate  ir.Aggregate `json:"aggregate"`
	Items      []string     `json:"items"`
}

func editResult(ed *editor.Editor) EditResult {
	ids := ed.Snapshot().IDs()
	if ids == nil {
		ids = []string{}
	}
	agg := ed.Aggregate()
	return EditResult{Collection: agg.ID, Aggregate: agg, Items: ids}
}

func withRun(r EditResult, res saga.Result) EditResult {
	r.RunToken = res.Token
	r.States = make([]string, len(res.History))
	for i, s := range res.History {
		r.States[i] = s.String()
	}
	return r
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Title     string
	Thumbnail string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add [collection]",
		Short: "Append a fragment",
		Long: `Append a fragment to the end of a collection, then update the parent's
item count. A parent without a thumbnail adopts the new fragment's.

Examples:
  planbuilder add 01JB... --title "Warmup" --thumbnail warmup.png`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := opts.collectionArgs(args, 0)
			if err != nil {
				return err
			}
			return runAdd(cmd.Context(), opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "fragment title (required)")
	_ = cmd.MarkFlagRequired("title")
	cmd.Flags().StringVar(&opts.Thumbnail, "thumbnail", "", "fragment thumbnail")
	return cmd
}

func runAdd(ctx context.Context, opts *AddOptions, collection string, cmd *cobra.Command) error {
	s, err := openSession(ctx, opts.RootOptions, collection)
	if err != nil {
		return err
	}
	defer s.Close()

	payload := ir.IRObject{ir.FieldTitle: ir.IRString(opts.Title)}
	if opts.Thumbnail != "" {
		payload[ir.FieldThumbnail] = ir.IRString(opts.Thumbnail)
	}

	run, err := s.editor.Insert(ctx, payload)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to add fragment", err)
	}
	res, err := run.Wait(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "interrupted", err)
	}
	if res.Outcome != saga.Succeeded {
		return WrapExitError(ExitFailure, "failed to add fragment", res.Err)
	}

	out := withRun(editResult(s.editor), res)
	if n := len(res.Data.After); n > 0 {
		out.Item = res.Data.After[n-1].ID
	}
	return opts.formatter(cmd).Success(out, fmt.Sprintf("Added %s to %s (%d items)\n", out.Item, collection, out.Aggregate.ItemCount))
}

// NewMoveCommand creates the move command.
func NewMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move [collection] <from> <to>",
		Short: "Move a fragment to a new index",
		Long: `Move the fragment at index <from> to index <to> (0-based) and save the
new order in one batch before exiting.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, rest, err := opts.collectionArgs(args, 2)
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(rest[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid <from>", err)
			}
			to, err := strconv.Atoi(rest[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid <to>", err)
			}
			return runMove(cmd.Context(), opts, id, from, to, cmd)
		},
	}
}

func runMove(ctx context.Context, opts *RootOptions, collection string, from, to int, cmd *cobra.Command) error {
	s, err := openSession(ctx, opts, collection)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.editor.Move(from, to); err != nil {
		return WrapExitError(ExitCommandError, "invalid move", err)
	}
	if err := s.editor.Flush(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to save order", err)
	}

	out := editResult(s.editor)
	return opts.formatter(cmd).Success(out, fmt.Sprintf("Order saved: %v\n", out.Items))
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [collection] <item>",
		Short: "Delete a fragment",
		Long: `Delete a fragment, close the gap in the remaining positions and update
the parent's item count and thumbnail.

Exit codes:
  0 - All three steps confirmed
  1 - The cascade aborted; the order shown is re-read from the store
  2 - Command error (unknown collection or item)`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, rest, err := opts.collectionArgs(args, 1)
			if err != nil {
				return err
			}
			return runDelete(cmd.Context(), opts, id, rest[0], cmd)
		},
	}
}

func runDelete(ctx context.Context, opts *RootOptions, collection, item string, cmd *cobra.Command) error {
	s, err := openSession(ctx, opts, collection)
	if err != nil {
		return err
	}
	defer s.Close()

	run, err := s.editor.Delete(ctx, item)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to delete fragment", err)
	}
	res, err := run.Wait(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "interrupted", err)
	}

	f := opts.formatter(cmd)
	if res.Outcome != saga.Succeeded {
		if rerr := s.editor.Refresh(ctx); rerr != nil {
			f.VerboseLog("refresh after abort failed: %v", rerr)
		}
		out := withRun(editResult(s.editor), res)
		out.Item = item
		if f.JSON() {
			_ = f.Error("CASCADE_ABORTED", res.Err.Error(), out)
		} else {
			fmt.Fprintf(f.Writer, "Delete of %s aborted; order now %v\n", item, out.Items)
		}
		return WrapExitError(ExitFailure, "delete aborted", res.Err)
	}

	out := withRun(editResult(s.editor), res)
	out.Item = item
	thumb := "none"
	if out.Aggregate.Thumbnail != nil {
		thumb = *out.Aggregate.Thumbnail
	}
	return f.Success(out, fmt.Sprintf("Removed %s from %s (%d items, thumbnail %s)\n", item, collection, out.Aggregate.ItemCount, thumb))
}
