package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfsamples/engine"
	"github.com/wudi/pdfsamples/layout"
	"github.com/wudi/pdfsamples/session"
	"github.com/wudi/pdfsamples/surface"
)

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <input.pdf>",
		Short: "Show document information",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			r, err := a.document(ctx, args[0])
			if err != nil {
				return err
			}
			defer r.Release()
			doc, err := use[*engine.Document](a, r)
			if err != nil {
				return err
			}
			info, err := doc.Info()
			if err != nil {
				return err
			}
			fp, err := doc.Fingerprint()
			if err != nil {
				return err
			}
			a.printf("File:        %s", args[0])
			a.printf("Title:       %s", info.Title)
			a.printf("Author:      %s", info.Author)
			a.printf("Producer:    %s", info.Producer)
			a.printf("Pages:       %d", info.Pages)
			a.printf("Size:        %d bytes", info.Size)
			a.printf("Encrypted:   %t", info.Encrypted)
			a.printf("Fingerprint: %s", fp)
			return nil
		}),
	}
}

// edit opens args[0], applies fn and saves the result to args[1].
func (a *app) edit(op string, fn func(doc *engine.Document) error) func(context.Context, *cobra.Command, []string) error {
	return func(ctx context.Context, _ *cobra.Command, args []string) error {
		r, err := a.document(ctx, args[0])
		if err != nil {
			return err
		}
		defer r.Release()
		doc, err := use[*engine.Document](a, r)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return fmt.Errorf("%s %s: %w", op, args[0], err)
		}
		if err := doc.Save(args[1]); err != nil {
			return err
		}
		a.ok("%s %s -> %s (%d bytes)", op, args[0], args[1], doc.Size())
		return nil
	}
}

func (a *app) watermarkCmd() *cobra.Command {
	var (
		text    string
		opts    engine.WatermarkOptions
		pages   []int
		degrees float64
	)
	cmd := &cobra.Command{
		Use:   "watermark <input.pdf> <output.pdf>",
		Short: "Stamp a text watermark on pages",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = a.run(nil, a.edit("watermark", func(doc *engine.Document) error {
		opts.Pages = pages
		if cmd.Flags().Changed("rotation") {
			opts.Rotation = &degrees
		}
		return doc.AddTextWatermark(text, opts)
	}))
	f := cmd.Flags()
	f.StringVar(&text, "text", "CONFIDENTIAL", "Watermark text")
	f.Float64Var(&opts.FontSize, "size", 0, "Font size in points, 0 to fit the page")
	f.Float64Var(&degrees, "rotation", 45, "Rotation in degrees")
	f.Float64Var(&opts.Opacity, "opacity", 0.3, "Opacity between 0 and 1")
	f.StringVar(&opts.Color, "color", "#808080", "Fill color")
	f.BoolVar(&opts.OnTop, "on-top", false, "Stamp over the page content")
	f.IntSliceVar(&pages, "pages", nil, "Pages to stamp, all when empty")
	return cmd
}

func (a *app) rotateCmd() *cobra.Command {
	var (
		degrees int
		pages   []int
	)
	cmd := &cobra.Command{
		Use:   "rotate <input.pdf> <output.pdf>",
		Short: "Rotate pages by a multiple of 90 degrees",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(nil, a.edit("rotate", func(doc *engine.Document) error {
			return doc.Rotate(degrees, pages...)
		})),
	}
	cmd.Flags().IntVar(&degrees, "degrees", 90, "Rotation in degrees")
	cmd.Flags().IntSliceVar(&pages, "pages", nil, "Pages to rotate, all when empty")
	return cmd
}

func (a *app) optimizeCmd() *cobra.Command {
	var validate bool
	cmd := &cobra.Command{
		Use:   "optimize <input.pdf> <output.pdf>",
		Short: "Remove redundant objects",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
		ro, err := a.open(ctx, nil, engine.KindOptimizer, engine.OptimizerParams{Validate: validate}, "optimizer")
		if err != nil {
			return err
		}
		defer ro.Release()
		return a.edit("optimize", func(doc *engine.Document) error {
			opt, err := use[*engine.Optimizer](a, ro)
			if err != nil {
				return err
			}
			stats, err := opt.Optimize(ctx, doc)
			if err != nil {
				return err
			}
			a.printf("saved %d bytes", stats.Saved())
			return nil
		})(ctx, nil, args)
	})
	cmd.Flags().BoolVar(&validate, "validate", false, "Validate before optimizing")
	return cmd
}

func (a *app) encryptCmd() *cobra.Command {
	var user, owner string
	cmd := &cobra.Command{
		Use:   "encrypt <input.pdf> <output.pdf>",
		Short: "Encrypt with AES-256",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(nil, a.edit("encrypt", func(doc *engine.Document) error {
			return doc.Encrypt(user, owner)
		})),
	}
	cmd.Flags().StringVar(&user, "user", "", "User password")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner password")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func (a *app) mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <output.pdf> <input.pdf> <input.pdf>...",
		Short: "Concatenate documents",
		Args:  cobra.MinimumNArgs(3),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			out, inputs := args[0], args[1:]
			var docs []*engine.Document
			for _, path := range inputs {
				r, err := a.document(ctx, path)
				if err != nil {
					return err
				}
				defer r.Release()
				doc, err := use[*engine.Document](a, r)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			if err := docs[0].MergeFrom(docs[1:]...); err != nil {
				return err
			}
			if err := docs[0].Save(out); err != nil {
				return err
			}
			a.ok("merged %d documents into %s (%d pages)", len(docs), out, docs[0].PageCount())
			return nil
		}),
	}
}

func (a *app) splitCmd() *cobra.Command {
	var span int
	cmd := &cobra.Command{
		Use:   "split <input.pdf> <dir>",
		Short: "Split into files of --span pages",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			r, err := a.document(ctx, args[0])
			if err != nil {
				return err
			}
			defer r.Release()
			doc, err := use[*engine.Document](a, r)
			if err != nil {
				return err
			}
			files, err := doc.Split(args[1], span)
			if err != nil {
				return err
			}
			for _, f := range files {
				a.ok("%s", f)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&span, "span", 1, "Pages per file")
	return cmd
}

// wordFinder opens a document and a word finder on it. Releasing the
// returned document resource releases the finder too.
func (a *app) wordFinder(ctx context.Context, path string, normalize bool) (*session.Resource, *engine.WordFinder, error) {
	r, err := a.document(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	rw, err := a.open(ctx, r, engine.KindWordFinder, engine.WordFinderParams{Normalize: normalize}, path+"#words")
	if err != nil {
		r.Release()
		return nil, nil, err
	}
	wf, err := use[*engine.WordFinder](a, rw)
	if err != nil {
		r.Release()
		return nil, nil, err
	}
	return r, wf, nil
}

func (a *app) textCmd() *cobra.Command {
	var (
		page      int
		normalize bool
	)
	cmd := &cobra.Command{
		Use:   "text <input.pdf>",
		Short: "Print the text of one page or the whole document",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			r, wf, err := a.wordFinder(ctx, args[0], normalize)
			if err != nil {
				return err
			}
			defer r.Release()
			var text string
			if page > 0 {
				text, err = wf.Text(page)
			} else {
				text, err = wf.AllText()
			}
			if err != nil {
				return err
			}
			a.printf("%s", text)
			return nil
		}),
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, 0 for all pages")
	cmd.Flags().BoolVar(&normalize, "normalize", true, "Apply NFKC normalization")
	return cmd
}

func (a *app) wordsCmd() *cobra.Command {
	var (
		page int
		find string
	)
	cmd := &cobra.Command{
		Use:   "words <input.pdf>",
		Short: "Print word positions",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			r, wf, err := a.wordFinder(ctx, args[0], true)
			if err != nil {
				return err
			}
			defer r.Release()
			first, last := 1, wf.PageCount()
			if page > 0 {
				first, last = page, page
			}
			for n := first; n <= last; n++ {
				var words []engine.Word
				if find != "" {
					words, err = wf.Find(n, find)
				} else {
					words, err = wf.Words(n)
				}
				if err != nil {
					return err
				}
				for _, w := range words {
					a.printf("%d\t%.1f\t%.1f\t%.1f\t%s", w.Page, w.X, w.Y, w.Width, w.Text)
				}
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&page, "page", 0, "Page number, 0 for all pages")
	cmd.Flags().StringVar(&find, "find", "", "Only print words containing this text")
	return cmd
}

func (a *app) imagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "images <input.pdf> <dir>",
		Short: "Extract the images of every page",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			r, err := a.document(ctx, args[0])
			if err != nil {
				return err
			}
			defer r.Release()
			doc, err := use[*engine.Document](a, r)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(args[1], 0o755); err != nil {
				return err
			}
			for n := 1; n <= doc.PageCount(); n++ {
				rp, err := a.open(ctx, r, engine.KindPage, engine.PageParams{Number: n}, fmt.Sprintf("page %d", n))
				if err != nil {
					return err
				}
				page, err := use[*engine.Page](a, rp)
				if err != nil {
					return err
				}
				infos, err := page.Images()
				if err != nil {
					return err
				}
				for _, info := range infos {
					ri, err := a.open(ctx, rp, engine.KindImage, engine.ImageParams{ObjNr: info.ObjNr}, info.Name)
					if err != nil {
						return err
					}
					img, err := use[*engine.Image](a, ri)
					if err != nil {
						return err
					}
					data, err := img.Bytes()
					if err != nil {
						return err
					}
					path := filepath.Join(args[1], fmt.Sprintf("page%d_%s.%s", n, info.Name, info.FileType))
					if err := os.WriteFile(path, data, 0o644); err != nil {
						return err
					}
					a.ok("%s (%dx%d)", path, info.Width, info.Height)
					ri.Release()
				}
				rp.Release()
			}
			return nil
		}),
	}
}

func (a *app) convertCmd() *cobra.Command {
	var paper string
	cmd := &cobra.Command{
		Use:   "convert <input.md|.html|.tex|.txt> <output.pdf>",
		Short: "Lay out Markdown, HTML, LaTeX or text as a PDF",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(nil, func(ctx context.Context, _ *cobra.Command, args []string) error {
			p, ok := papers[strings.ToLower(paper)]
			if !ok {
				return fmt.Errorf("unknown paper %q", paper)
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			le := layout.NewEngine(layout.WithPaper(p))
			switch ext := strings.ToLower(filepath.Ext(args[0])); ext {
			case ".md", ".markdown":
				err = le.RenderMarkdown(ctx, string(src))
			case ".html", ".htm":
				err = le.RenderHTML(ctx, string(src))
			case ".tex":
				err = le.RenderLaTeX(ctx, string(src))
			case ".txt", "":
				err = le.RenderText(ctx, string(src))
			default:
				return fmt.Errorf("convert %s: unsupported input type %s", args[0], ext)
			}
			if err != nil {
				return fmt.Errorf("render %s: %w", args[0], err)
			}
			desc, err := le.JSON()
			if err != nil {
				return err
			}
			r, err := a.open(ctx, nil, engine.KindDocument, engine.FromLayout(filepath.Base(args[1]), desc), args[1])
			if err != nil {
				return err
			}
			defer r.Release()
			doc, err := use[*engine.Document](a, r)
			if err != nil {
				return err
			}
			if err := doc.Save(args[1]); err != nil {
				return err
			}
			a.ok("%s -> %s (%d pages)", args[0], args[1], doc.PageCount())
			return nil
		}),
	}
	cmd.Flags().StringVar(&paper, "paper", "a4", "Paper size: a4, a5, letter or legal")
	return cmd
}

var papers = map[string]layout.Paper{
	"a4":     layout.A4,
	"a5":     layout.A5,
	"letter": layout.Letter,
	"legal":  layout.Legal,
}

func (a *app) formsCmd() *cobra.Command {
	var (
		fields []string
		target string
		doc    string
	)
	cmd := &cobra.Command{
		Use:   "forms <script.js>",
		Short: "Run a form calculation script",
		Long: `Runs a calculation script with the given fields. The script reads
fields through getField(name).value and sets event.value, which is stored in
the --target field.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run([]surface.Extension{surface.ExtensionForms}, func(ctx context.Context, _ *cobra.Command, args []string) error {
			params := engine.FormsParams{Fields: map[string]string{}}
			for _, kv := range fields {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("field %q: want name=value", kv)
				}
				params.Fields[k] = v
			}
			script, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			r, err := a.formsParent(ctx, doc)
			if err != nil {
				return err
			}
			defer r.Release()
			rf, err := a.open(ctx, r, engine.KindForms, params, "forms")
			if err != nil {
				return err
			}
			defer rf.Release()
			forms, err := use[*engine.Forms](a, rf)
			if err != nil {
				return err
			}
			if err := forms.Calculate(ctx, target, string(script)); err != nil {
				return err
			}
			for _, msg := range forms.Alerts() {
				a.printf("alert: %s", msg)
			}
			values, err := forms.Fields()
			if err != nil {
				return err
			}
			a.ok("%s = %s", target, values[target])
			return nil
		}),
	}
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Field value as name=value, repeatable")
	cmd.Flags().StringVar(&target, "target", "total", "Field receiving event.value")
	cmd.Flags().StringVar(&doc, "document", "", "Document whose page count scripts see as numPages")
	return cmd
}

func (a *app) formsParent(ctx context.Context, path string) (*session.Resource, error) {
	if path == "" {
		return nil, nil
	}
	return a.document(ctx, path)
}

func (a *app) ocrCmd() *cobra.Command {
	var (
		langs []string
		dpi   int
		page  int
	)
	cmd := &cobra.Command{
		Use:   "ocr <input.pdf>",
		Short: "Recognize the text of the images on a page",
		Args:  cobra.ExactArgs(1),
		RunE: a.run([]surface.Extension{surface.ExtensionOCR}, func(ctx context.Context, _ *cobra.Command, args []string) error {
			r, err := a.document(ctx, args[0])
			if err != nil {
				return err
			}
			defer r.Release()
			rr, err := a.open(ctx, nil, engine.KindOCR, engine.OCRParams{Languages: langs, DPI: dpi}, "ocr")
			if err != nil {
				return err
			}
			defer rr.Release()
			rp, err := a.open(ctx, r, engine.KindPage, engine.PageParams{Number: page}, "page "+strconv.Itoa(page))
			if err != nil {
				return err
			}
			rec, err := use[*engine.Recognizer](a, rr)
			if err != nil {
				return err
			}
			pg, err := use[*engine.Page](a, rp)
			if err != nil {
				return err
			}
			infos, err := pg.Images()
			if err != nil {
				return err
			}
			for _, info := range infos {
				ri, err := a.open(ctx, rp, engine.KindImage, engine.ImageParams{ObjNr: info.ObjNr}, info.Name)
				if err != nil {
					return err
				}
				img, err := use[*engine.Image](a, ri)
				if err != nil {
					return err
				}
				res, err := rec.Recognize(ctx, img)
				if err != nil {
					return err
				}
				a.ok("%s: %s", info.Name, strings.TrimSpace(res.PlainText))
				ri.Release()
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&langs, "lang", []string{"eng"}, "Tesseract languages")
	cmd.Flags().IntVar(&dpi, "dpi", 0, "Effective image resolution, 0 if unknown")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	return cmd
}
