package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/objidx/internal/client/models"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

type printer struct {
	w    io.Writer
	json bool
}

// newPrinter picks JSON or text. "auto" means text on a terminal.
func newPrinter(w io.Writer, mode string) (*printer, error) {
	switch strings.ToLower(mode) {
	case "json":
		return &printer{w: w, json: true}, nil
	case "text":
		return &printer{w: w}, nil
	case "", "auto":
		f, ok := w.(*os.File)
		return &printer{w: w, json: !ok || !isTerminal(int(f.Fd()))}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (auto|json|text)", mode)
	}
}

func (p *printer) emitJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table(header string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func mimeOf(o *models.Object) string {
	if o.Mime == nil {
		return "-"
	}
	return *o.Mime
}

func (p *printer) objects(objs []*models.Object) error {
	if p.json {
		return p.emitJSON(objs)
	}
	rows := make([][]string, 0, len(objs))
	for _, o := range objs {
		rows = append(rows, []string{
			o.UUID, o.Checksum, fmt.Sprint(o.ObjSize), o.Bucket + "/" + o.Key, mimeOf(o),
			fmt.Sprint(o.Completed), fmt.Sprint(o.Deleted),
		})
	}
	return p.table("ID\tCHECKSUM\tSIZE\tLOCATION\tMIME\tCOMPLETED\tDELETED", rows)
}

func (p *printer) object(o *models.Object) error {
	if p.json {
		return p.emitJSON(o)
	}
	if err := p.objects([]*models.Object{o}); err != nil {
		return err
	}
	if len(o.Files) == 0 {
		return nil
	}
	fmt.Fprintln(p.w)
	rows := make([][]string, 0, len(o.Files))
	for _, f := range o.Files {
		rows = append(rows, []string{f.UUID, f.Link})
	}
	return p.table("FILE\tURL", rows)
}

func (p *printer) files(files []*models.File) error {
	if p.json {
		return p.emitJSON(files)
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		mtime := "-"
		if f.MTime != nil {
			mtime = f.MTime.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{f.UUID, f.URL, mtime, fmt.Sprint(f.Direct), fmt.Sprint(f.Partial), f.ULUser})
	}
	return p.table("ID\tURL\tMTIME\tDIRECT\tPARTIAL\tUSER", rows)
}

func (p *printer) file(f *models.File) error {
	if p.json {
		return p.emitJSON(f)
	}
	if err := p.files([]*models.File{f}); err != nil {
		return err
	}
	if f.Object != nil {
		fmt.Fprintln(p.w)
		return p.objects([]*models.Object{f.Object})
	}
	return nil
}

type uploadLine struct {
	Path     string `json:"path"`
	FileID   string `json:"file_id"`
	ObjectID string `json:"object_id,omitempty"`
	Checksum string `json:"checksum"`
	Exists   bool   `json:"exists"`
	Uploaded bool   `json:"uploaded"`
}

func (p *printer) uploads(lines []uploadLine) error {
	if p.json {
		return p.emitJSON(lines)
	}
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		state := "registered"
		switch {
		case l.Uploaded:
			state = "uploaded"
		case l.Exists:
			state = "deduplicated"
		}
		rows = append(rows, []string{l.Path, l.FileID, l.Checksum, state})
	}
	return p.table("PATH\tFILE\tCHECKSUM\tSTATE", rows)
}
