package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/objidx/internal/client/services"
	"github.com/dmitrijs2005/objidx/internal/filex"
	"github.com/spf13/cobra"
)

func newUploadCommand() *cobra.Command {
	var (
		tags     []string
		fileURL  string
		mimeType string
		partial  bool
		indirect bool
	)

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Register files and upload content the server does not have yet",
		Long: `Computes checksum, size, mtime and mime type of each file and registers it.
Content new to the server is uploaded (presigned URL, or S3 credentials
when none is offered) and then marked completed.

Usage examples:

	objidx upload report.pdf -t project=apollo
	objidx upload --url https://example.org/a.iso a.iso
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileURL != "" && len(args) > 1 {
				return errors.New("--url applies to a single file")
			}
			tagMap, err := services.ParseTags(tags)
			if err != nil {
				return err
			}

			app := appFrom(cmd)
			opts := services.UploadOptions{URL: fileURL, Mime: mimeType, Tags: tagMap, Partial: partial}
			if indirect {
				direct := false
				opts.Direct = &direct
			}

			lines := make([]uploadLine, 0, len(args))
			for _, path := range args {
				out, err := app.objects.Upload(cmd.Context(), path, opts)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				line := uploadLine{
					Path:     path,
					FileID:   out.Result.File.UUID,
					Checksum: out.Checksum,
					Exists:   out.Result.Exists,
					Uploaded: out.Transferred,
				}
				if out.Result.Upload != nil {
					line.ObjectID = out.Result.Upload.ObjectID
				}
				lines = append(lines, line)
			}
			return app.out.uploads(lines)
		},
	}

	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "file tag key=value (repeatable)")
	cmd.Flags().StringVar(&fileURL, "url", "", "file URL (default file://<host>/<absolute path>)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "mime type (default detected)")
	cmd.Flags().BoolVar(&partial, "partial", false, "the file is a partial copy of the URL")
	cmd.Flags().BoolVar(&indirect, "indirect", false, "the URL does not point directly at this content")

	return cmd
}

func newSearchCommand() *cobra.Command {
	var (
		fileURL string
		tag     string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find files by URL (trailing * for prefix) or by tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var key, value string
			if tag != "" {
				var ok bool
				key, value, ok = strings.Cut(tag, "=")
				if !ok || key == "" {
					return fmt.Errorf("tag %q must be key=value", tag)
				}
			}
			if (fileURL == "") == (key == "") {
				return errors.New("give exactly one of --url or --tag")
			}

			app := appFrom(cmd)
			files, err := app.client.SearchFiles(cmd.Context(), fileURL, key, value)
			if err != nil {
				return err
			}
			return app.out.files(files)
		},
	}

	cmd.Flags().StringVar(&fileURL, "url", "", "file URL; a trailing * matches a prefix")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "extra tag key=value")

	return cmd
}

func newFileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "file <id>",
		Short: "Show a file and its object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			f, err := app.client.GetFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return app.out.file(f)
		},
	}
}

func newObjectCommand() *cobra.Command {
	var sum string

	cmd := &cobra.Command{
		Use:   "object (<id> | --checksum <hex>)",
		Short: "Show an object with its files, or find objects by checksum",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			switch {
			case sum != "" && len(args) == 0:
				objs, err := app.client.FindObjects(cmd.Context(), sum)
				if err != nil {
					return err
				}
				return app.out.objects(objs)
			case sum == "" && len(args) == 1:
				o, err := app.client.GetObject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return app.out.object(o)
			default:
				return errors.New("give an object id or --checksum")
			}
		},
	}

	cmd.Flags().StringVar(&sum, "checksum", "", "hex checksum")

	return cmd
}

func newDownloadCommand() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "download <object-id>",
		Short: "Fetch an object's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)

			if dest == "" || dest == "-" {
				_, err := app.objects.Download(cmd.Context(), args[0], cmd.OutOrStdout())
				return err
			}

			return filex.WriteAtomic(dest, func(w io.Writer) error {
				_, err := app.objects.Download(cmd.Context(), args[0], w)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&dest, "dest", "O", "", "write to this path instead of stdout")

	return cmd
}

func newCompleteCommand() *cobra.Command {
	var pending bool

	cmd := &cobra.Command{
		Use:   "complete (<object-id> | --pending)",
		Short: "Mark an uploaded object completed, or finish journaled uploads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			switch {
			case pending && len(args) == 0:
				n, err := app.objects.ResumePending(cmd.Context())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "completed %d pending upload(s)\n", n)
				return err
			case !pending && len(args) == 1:
				o, err := app.client.Complete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return app.out.object(o)
			default:
				return errors.New("give an object id or --pending")
			}
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "complete uploads recorded in the local journal")

	return cmd
}
