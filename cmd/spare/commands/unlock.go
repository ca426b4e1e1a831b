package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxstorage/spare/pkg/codec"
	"github.com/nyxstorage/spare/pkg/envoy"
)

var unlockCodec string

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release the bucket-wide mutex",
	Long:  `Delete .lock. Fails if the bucket is already free.`,
	RunE:  runUnlock,
}

func init() {
	flags := unlockCmd.Flags()
	flags.StringVar(&unlockCodec, "codec", codec.DefaultCodecID, "block codec the bucket was written with (aes-siv|aes-gcm)")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := buildEnvoy(ctx, unlockCodec, envoy.BlockSize)
	if err != nil {
		return err
	}

	if err := e.Unlock(ctx); err != nil {
		var notLocked *envoy.BucketNotLockedError
		if errors.As(err, &notLocked) {
			printer.Error(err.Error())
			return &validationFailedError{}
		}
		return err
	}

	printer.Success(fmt.Sprintf("unlocked %s", cfg.Bucket))
	return nil
}
