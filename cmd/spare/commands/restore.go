package commands

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nyxstorage/spare/pkg/codec"
	"github.com/nyxstorage/spare/pkg/criticalsection"
	"github.com/nyxstorage/spare/pkg/envoy"
	"github.com/nyxstorage/spare/pkg/recovery"
	"github.com/nyxstorage/spare/pkg/snapshot"
)

var (
	restorePath     string
	restoreSnapshot string
	restoreCodec    string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Recreate a tree from a retained snapshot",
	Long: `Reconstruct --path from the selected snapshot (default: the latest),
recreating directories, symlinks, ownership, permissions, and hardlinks,
then downloading file content across a bounded worker pool.

--path must be empty or not yet exist.`,
	RunE: runRestore,
}

func init() {
	flags := restoreCmd.Flags()
	flags.StringVar(&restorePath, "path", "", "empty (or not yet existing) directory to restore into (required)")
	flags.StringVar(&restoreSnapshot, "snapshot", "latest", "snapshot to restore: \"latest\" or a snapshot_<ULID> prefix")
	flags.StringVar(&restoreCodec, "codec", codec.DefaultCodecID, "block codec the bucket was written with (aes-siv|aes-gcm)")
	_ = restoreCmd.MarkFlagRequired("path")
}

func runRestore(cmd *cobra.Command, args []string) error {
	return criticalsection.Run(func() error {
		ctx := cmd.Context()

		return withLockedEnvoy(ctx, restoreCodec, envoy.BlockSize, func(e *envoy.Envoy) error {
			coll := snapshot.NewCollection(e)
			if err := coll.Load(ctx); err != nil {
				return err
			}

			s, ok := coll.Get(restoreSnapshot)
			if !ok {
				return fmt.Errorf("restore: no snapshot matching %q", restoreSnapshot)
			}

			var total int64
			for _, paths := range s.Meta.Files {
				total += s.Meta.Structure[paths[0]].Size
			}
			bar := progressbar.DefaultBytes(total, "downloading")
			r := recovery.New(e, s, recovery.WithProgress(func(n int) { _ = bar.Add(n) }))
			if err := r.Restore(ctx, restorePath); err != nil {
				return err
			}
			_ = bar.Finish()

			printer.Success(fmt.Sprintf("restored %s to %s", s.Prefix, restorePath))
			return nil
		})
	})
}
