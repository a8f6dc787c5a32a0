package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/planbuilder/internal/ir"
	"github.com/roach88/planbuilder/internal/remote"
	"github.com/roach88/planbuilder/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Kind string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <title>",
		Short: "Create an empty plan or queue",
		Long: `Create an empty collection owned by the acting user.

Examples:
  planbuilder init "Leg day"
  planbuilder init "Later" --kind queue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", string(ir.KindPlan), "collection kind (plan|queue)")
	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, title string, cmd *cobra.Command) error {
	kind := ir.CollectionKind(opts.Kind)
	if !kind.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be plan or queue", opts.Kind))
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	agg, err := st.CreateCollection(ctx, ir.Aggregate{
		Kind:    kind,
		OwnerID: opts.Config.Actor,
		Title:   title,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create collection", err)
	}

	return opts.formatter(cmd).Success(agg, fmt.Sprintf("Created %s %s (%s)\n", agg.Kind, agg.ID, agg.Title))
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans and queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, cmd)
		},
	}
}

func runList(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	aggs, err := st.ListCollections(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list collections", err)
	}

	var b strings.Builder
	if len(aggs) == 0 {
		b.WriteString("No collections.\n")
	}
	for _, agg := range aggs {
		fmt.Fprintf(&b, "%s  %-5s  %3d  %s\n", agg.ID, agg.Kind, agg.ItemCount, agg.Title)
	}
	return opts.formatter(cmd).Success(aggs, b.String())
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [collection]",
		Short: "Show a collection and its fragments in order",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := opts.collectionArgs(args, 0)
			if err != nil {
				return err
			}
			return runShow(cmd.Context(), opts, id, cmd)
		},
	}
}

// CollectionView is the show command's payload.
type CollectionView struct {
	Aggregate ir.Aggregate `json:"aggregate"`
	Items     ir.Snapshot  `json:"items"`
}

func runShow(ctx context.Context, opts *RootOptions, id string, cmd *cobra.Command) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	agg, items, err := st.LoadCollection(ctx, id)
	if err != nil {
		return loadError(err)
	}
	if items == nil {
		items = ir.Snapshot{}
	}

	return opts.formatter(cmd).Success(CollectionView{Aggregate: agg, Items: items}, renderCollection(agg, items))
}

func renderCollection(agg ir.Aggregate, items ir.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s\n", agg.Kind, agg.ID, agg.Title)
	fmt.Fprintf(&b, "  items: %d\n", agg.ItemCount)
	if agg.Thumbnail != nil {
		fmt.Fprintf(&b, "  thumbnail: %s\n", *agg.Thumbnail)
	}
	for _, it := range items {
		title, _ := it.Payload.GetString(ir.FieldTitle)
		thumb, _ := it.Thumbnail()
		fmt.Fprintf(&b, "  %2d. %s  %s", it.Position, it.ID, title)
		if thumb != "" {
			fmt.Fprintf(&b, "  [%s]", thumb)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// NewLogCommand creates the log command.
func NewLogCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log [collection]",
		Short: "Show the batch writes applied to a collection",
		Long: `Show every reorder batch the store applied to a collection, oldest
first. Each batch is keyed by a content hash of its updates.`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _, err := opts.collectionArgs(args, 0)
			if err != nil {
				return err
			}
			return runLog(cmd.Context(), opts, id, cmd)
		},
	}
}

func runLog(ctx context.Context, opts *RootOptions, id string, cmd *cobra.Command) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, _, err := st.LoadCollection(ctx, id); err != nil {
		return loadError(err)
	}
	records, err := st.BatchLog(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read batch log", err)
	}

	return opts.formatter(cmd).Success(records, renderLog(id, records))
}

func renderLog(id string, records []store.BatchRecord) string {
	if len(records) == 0 {
		return fmt.Sprintf("No batches for %s.\n", id)
	}
	var b strings.Builder
	for _, r := range records {
		key := r.BatchKey
		if len(key) > 12 {
			key = key[:12]
		}
		fmt.Fprintf(&b, "#%d  %s  %s\n", r.Seq, key, r.Updates)
	}
	return b.String()
}

func loadError(err error) error {
	if remote.IsNotFound(err) {
		return WrapExitError(ExitCommandError, "collection not found", err)
	}
	return WrapExitError(ExitFailure, "failed to load collection", err)
}
