package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/mvthread/internal/domain"
)

// ResourceFetcher downloads a remote file, reading at most maxBytes.
type ResourceFetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) (data []byte, contentType string, err error)
}

// Rehoster downloads attachments so they can be uploaded again.
type Rehoster struct {
	Fetcher     ResourceFetcher
	Concurrency int
	MaxBytes    int64
}

// Rehost fetches atts with bounded parallelism and returns the files that
// could be downloaded, in their original order. Attachments that are too
// large or fail to download are dropped.
func (r *Rehoster) Rehost(ctx context.Context, atts []domain.Attachment) []domain.File {
	if len(atts) == 0 {
		return nil
	}
	tr := otel.Tracer("services/Rehoster")
	ctx, span := tr.Start(ctx, "Rehost",
		trace.WithAttributes(attribute.Int("attachments", len(atts))),
	)
	defer span.End()

	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}
	slots := make([]*domain.File, len(atts))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, a := range atts {
		if r.MaxBytes > 0 && int64(a.Size) > r.MaxBytes {
			log.Ctx(ctx).Debug().Str("url", a.URL).Int("size", a.Size).Msg("attachment too large, dropped")
			attachmentsTotal.WithLabelValues("dropped").Inc()
			continue
		}
		g.Go(func() error {
			data, ct, err := r.Fetcher.Fetch(ctx, a.URL, r.MaxBytes)
			if err != nil {
				log.Ctx(ctx).Debug().Err(err).Str("url", a.URL).Msg("attachment fetch failed, dropped")
				attachmentsTotal.WithLabelValues("dropped").Inc()
				return nil
			}
			if a.ContentType != "" {
				ct = a.ContentType
			}
			slots[i] = &domain.File{Name: a.Filename, ContentType: ct, Data: data}
			attachmentsTotal.WithLabelValues("rehosted").Inc()
			return nil
		})
	}
	_ = g.Wait()

	files := make([]domain.File, 0, len(atts))
	for _, f := range slots {
		if f != nil {
			files = append(files, *f)
		}
	}
	span.SetAttributes(attribute.Int("rehosted", len(files)))
	return files
}
