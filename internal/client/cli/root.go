package cli

import (
	"context"
	"io"

	"github.com/dmitrijs2005/objidx/internal/client/config"
	"github.com/spf13/cobra"
)

type appKey struct{}

type holderKey struct{}

// appHolder lets Execute close the App built inside the command tree.
type appHolder struct{ app *App }

// appFrom returns the App built by the root command's pre-run.
func appFrom(cmd *cobra.Command) *App {
	return cmd.Context().Value(appKey{}).(*App)
}

// NewRootCommand builds the objidx command tree writing to stdout.
func NewRootCommand(stdout io.Writer) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "objidx",
		Short:         "Register, upload and look up content in an objidx server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			app, err := NewApp(cmd.Context(), cfg, stdout)
			if err != nil {
				return err
			}
			if h, ok := cmd.Context().Value(holderKey{}).(*appHolder); ok {
				h.app = app
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
	}
	root.SetOut(stdout)

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (json, yaml or toml)")
	pf.String("server", "", "objidx server URL")
	pf.String("token", "", "bearer token")
	pf.String("bucket", "", "bucket for new objects")
	pf.String("algo", "", "checksum algorithm (sha256|blake2b|blake3)")
	pf.StringP("output", "o", "", "output format (auto|json|text)")
	pf.String("journal", "", "local journal database path")
	pf.String("user", "", "uploader user")
	pf.String("host", "", "uploader host, also used in default file URLs")
	pf.String("s3-access-key", "", "S3 access key for direct transfers")
	pf.String("s3-secret-key", "", "S3 secret key for direct transfers")
	pf.String("s3-region", "", "S3 region")
	pf.String("s3-endpoint", "", "S3 endpoint")

	root.AddCommand(
		newUploadCommand(),
		newSearchCommand(),
		newFileCommand(),
		newObjectCommand(),
		newDownloadCommand(),
		newCompleteCommand(),
	)

	return root
}

// Execute runs the command tree with ctx and releases the App afterwards.
func Execute(ctx context.Context, args []string, stdout io.Writer) error {
	root := NewRootCommand(stdout)
	root.SetArgs(args)

	holder := &appHolder{}
	err := root.ExecuteContext(context.WithValue(ctx, holderKey{}, holder))
	if holder.app != nil {
		holder.app.Close()
	}
	return err
}
