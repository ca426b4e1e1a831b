package commands

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nyxstorage/spare/pkg/codec"
	"github.com/nyxstorage/spare/pkg/criticalsection"
	"github.com/nyxstorage/spare/pkg/envoy"
	"github.com/nyxstorage/spare/pkg/inventory"
	"github.com/nyxstorage/spare/pkg/snapshot"
)

var (
	createPath      string
	createSkip      []string
	createForce     bool
	createBlockSize string
	createCodec     string
	createKeep      int
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up a directory tree",
	Long: `Scan --path, upload any content not already present in the bucket, and
write a new snapshot recording the tree's structure and ownership.

Examples:
  spare create --path /srv/data --bucket backups --endpoint s3.example.com \
    --access-key AKID --secret-key SECRET --password hunter2

  spare create --path /srv/data --skip '\.git' --skip '.*\.tmp$' --keep 7`,
	RunE: runCreate,
}

func init() {
	flags := createCmd.Flags()
	flags.StringVar(&createPath, "path", "", "directory to back up (required)")
	flags.StringSliceVar(&createSkip, "skip", nil, "regular expression matched from the start of a path relative to --path; matches are skipped, may be repeated")
	flags.BoolVar(&createForce, "force", false, "back up even if the bucket holds snapshots from a different host/path")
	flags.StringVar(&createBlockSize, "blocksize", units.HumanSize(1<<20), "chunk size before encryption, e.g. 1MB")
	flags.StringVar(&createCodec, "codec", codec.DefaultCodecID, "block codec (aes-siv|aes-gcm)")
	flags.IntVar(&createKeep, "keep", 1, "number of snapshots to retain after this backup")
	_ = createCmd.MarkFlagRequired("path")
}

// totalFileBytes sums the size of one canonical path per digest in inv, for
// sizing the upload progress bar. It overcounts content already present in
// the bucket, since Backup only learns which digests are new once it lists
// the bucket's prefixes.
func totalFileBytes(inv *inventory.Inventory) int64 {
	var total int64
	for _, paths := range inv.Files {
		total += inv.Structure[paths[0]].Size
	}
	return total
}

func runCreate(cmd *cobra.Command, args []string) error {
	blockSize, err := units.RAMInBytes(createBlockSize)
	if err != nil {
		return fmt.Errorf("--blocksize: %w", err)
	}

	return criticalsection.Run(func() error {
		ctx := cmd.Context()

		scanner := inventory.NewScanner(createPath, inventory.WithSkip(createSkip))
		inv, err := scanner.Scan()
		if err != nil {
			return fmt.Errorf("scan %s: %w", createPath, err)
		}

		return withLockedEnvoy(ctx, createCodec, int(blockSize), func(e *envoy.Envoy) error {
			coll := snapshot.NewCollection(e)
			if err := coll.Load(ctx); err != nil {
				return err
			}

			s, err := coll.Create()
			if err != nil {
				return err
			}

			bar := progressbar.DefaultBytes(totalFileBytes(inv), "uploading")
			s.Progress = func(n int) { _ = bar.Add(n) }

			if err := s.Backup(ctx, inv, createForce); err != nil {
				return err
			}
			_ = bar.Finish()

			result, err := coll.Prune(ctx, createKeep, false)
			if err != nil {
				return err
			}

			printer.Success(fmt.Sprintf("created %s", s.Prefix))
			if len(result.DeletedSnapshots) > 0 {
				printer.Printf("pruned %d older snapshot(s)\n", len(result.DeletedSnapshots))
			}
			return nil
		})
	})
}
