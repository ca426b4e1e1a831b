package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nyxstorage/spare/pkg/codec"
	"github.com/nyxstorage/spare/pkg/criticalsection"
	"github.com/nyxstorage/spare/pkg/envoy"
	"github.com/nyxstorage/spare/pkg/snapshot"
)

var (
	validateSnapshot string
	validateCodec    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a snapshot's referenced content is present and intact",
	Long: `Re-download and re-hash every digest the selected snapshot (default:
the latest) references, comparing against the declared digest, and confirm
every referenced path still has structure metadata.

Exits 1 (without raising) if any defect is found; every defect is also
logged at error level.`,
	RunE: runValidate,
}

func init() {
	flags := validateCmd.Flags()
	flags.StringVar(&validateSnapshot, "snapshot", "latest", "snapshot to validate: \"latest\" or a snapshot_<ULID> prefix")
	flags.StringVar(&validateCodec, "codec", codec.DefaultCodecID, "block codec the bucket was written with (aes-siv|aes-gcm)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	var ok bool
	var defects []snapshot.Defect
	var prefix string

	err := criticalsection.Run(func() error {
		ctx := cmd.Context()

		return withLockedEnvoy(ctx, validateCodec, envoy.BlockSize, func(e *envoy.Envoy) error {
			coll := snapshot.NewCollection(e)
			if err := coll.Load(ctx); err != nil {
				return err
			}

			s, found := coll.Get(validateSnapshot)
			if !found {
				return fmt.Errorf("validate: no snapshot matching %q", validateSnapshot)
			}
			prefix = s.Prefix

			ok, defects = s.Validate(ctx)
			return nil
		})
	})
	if err != nil {
		return err
	}

	if perr := printer.Print(snapshot.Defects(defects)); perr != nil {
		return perr
	}

	if ok {
		printer.Success(fmt.Sprintf("%s is valid", prefix))
		return nil
	}

	printer.Error(fmt.Sprintf("%s has %d defect(s)", prefix, len(defects)))
	return &validationFailedError{}
}

// validationFailedError signals runE to exit 1 without printing an extra
// error line (the defects table and summary above already told the story).
type validationFailedError struct{}

func (*validationFailedError) Error() string { return "" }
