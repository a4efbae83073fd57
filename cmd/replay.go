package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/difflog/internal/app"
	"github.com/JakeFAU/difflog/internal/compress"
	idgen "github.com/JakeFAU/difflog/internal/id/uuid"
	"github.com/JakeFAU/difflog/internal/replica"
)

type replayOptions struct {
	compression string
	session     string
}

// newReplayCmd creates the 'replay' subcommand, which rebuilds the final state
// from recorded frames.
func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay [FILE]",
		Short: "Rebuilds the published state from recorded frames",
		Long: `Applies a baseline and its patches in order and prints the resulting
state as JSON. Frames come from FILE ("-" for stdin), or from Postgres when
--session is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.compression, "compression", "",
		fmt.Sprintf("compression of FILE (one of %v; default: from the extension)", compress.Methods()))
	cmd.Flags().StringVar(&opts.session, "session", "", "replay a session stored in postgres")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string, opts replayOptions) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	var rep *replica.Replica
	switch {
	case opts.session != "":
		if len(args) > 0 {
			return errors.New("FILE and --session are mutually exclusive")
		}
		rep, err = replaySession(cmd, rt, opts.session)
	default:
		path := "-"
		if len(args) > 0 {
			path = args[0]
		}
		rep, err = replayFile(cmd, path, opts.compression)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(rep.State(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	rt.logger.Debug("replay finished")
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func replayFile(cmd *cobra.Command, path, method string) (*replica.Replica, error) {
	if method == "" && path != "-" {
		method = methodFromExtension(path)
	}
	src, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	r, err := compress.NewReader(method, src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	rep, err := replica.Read(r)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	return rep, nil
}

func replaySession(cmd *cobra.Command, rt *runtime, raw string) (*replica.Replica, error) {
	session, err := idgen.Parse(raw)
	if err != nil {
		return nil, err
	}
	if rt.cfg.Postgres.DSN == "" {
		return nil, errors.New("postgres.dsn is required to replay a session")
	}
	repo, err := app.OpenFrameStore(cmd.Context(), rt.cfg.Postgres)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	frames, err := repo.ListFrames(cmd.Context(), session)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	rep := replica.New()
	for _, f := range frames {
		if err := rep.Apply(f.Text); err != nil && !errors.Is(err, replica.ErrNotFrame) {
			return nil, fmt.Errorf("frame %d: %w", f.Seq, err)
		}
	}
	return rep, nil
}

func methodFromExtension(path string) string {
	for _, m := range compress.Methods() {
		if ext := compress.Extension(m); ext != "" && strings.HasSuffix(path, ext) {
			return m
		}
	}
	return compress.None
}
