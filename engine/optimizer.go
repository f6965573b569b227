package engine

import (
	"context"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/surface"
)

// Optimizer removes redundant objects and duplicate resources from
// documents. It holds no state of its own and can be applied to any number
// of documents.
type Optimizer struct {
	sf       *engineSurface
	validate bool
	closed   bool
}

// OptimizeStats reports the serialized size before and after optimizing.
type OptimizeStats struct {
	Before int64
	After  int64
}

// Saved returns the number of bytes removed.
func (s OptimizeStats) Saved() int64 { return s.Before - s.After }

func (o *Optimizer) Kind() surface.Kind { return KindOptimizer }

func (o *Optimizer) Close() error {
	o.closed = true
	return nil
}

// Optimize rewrites doc in place.
func (o *Optimizer) Optimize(ctx context.Context, doc *Document) (OptimizeStats, error) {
	if o.closed {
		return OptimizeStats{}, o.sf.gone()
	}
	if err := ctx.Err(); err != nil {
		return OptimizeStats{}, err
	}
	stats := OptimizeStats{Before: doc.Size()}
	err := doc.apply("optimize", func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		if o.validate {
			if err := api.Validate(rs, conf); err != nil {
				return err
			}
			if _, err := rs.Seek(0, io.SeekStart); err != nil {
				return err
			}
			conf = o.sf.newConf(doc.password, doc.password)
		}
		return api.Optimize(rs, w, conf)
	})
	if err != nil {
		return stats, err
	}
	stats.After = doc.Size()
	o.sf.log.Info("document optimized",
		observability.String("document", doc.Name()),
		observability.Int64("before", stats.Before),
		observability.Int64("after", stats.After),
	)
	return stats, nil
}
