package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxstorage/spare/pkg/codec"
	"github.com/nyxstorage/spare/pkg/envoy"
)

var lockCodec string

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Acquire the bucket-wide mutex",
	Long: `Bootstrap the bucket if needed, verify it belongs to spare, and write
.lock. Fails if the bucket is already locked by another holder.`,
	RunE: runLock,
}

func init() {
	flags := lockCmd.Flags()
	flags.StringVar(&lockCodec, "codec", codec.DefaultCodecID, "block codec the bucket was written with (aes-siv|aes-gcm)")
}

func runLock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := buildEnvoy(ctx, lockCodec, envoy.BlockSize)
	if err != nil {
		return err
	}

	if err := e.Lock(ctx); err != nil {
		var already *envoy.BucketAlreadyLockedError
		if errors.As(err, &already) {
			printer.Error(err.Error())
			return &validationFailedError{}
		}
		return err
	}

	printer.Success(fmt.Sprintf("locked %s", cfg.Bucket))
	return nil
}
