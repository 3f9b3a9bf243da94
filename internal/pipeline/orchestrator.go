// Package pipeline drives a labeling batch through embedding, clustering and
// labeling, and attaches the labels to the articles.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/newslabels/pkg/models"
	"github.com/thebtf/newslabels/pkg/similarity"
)

// DefaultConcurrency bounds parallel external calls within one batch.
const DefaultConcurrency = 8

// FieldEmbedder returns the embedding of an article's ordered text fields.
type FieldEmbedder interface {
	EmbedFields(ctx context.Context, credential string, fields []string) ([]float64, error)
}

// TitleLabeler returns one label for an ordered list of titles.
type TitleLabeler interface {
	LabelTitles(ctx context.Context, credential string, titles []string) (string, error)
}

// Clusterer partitions vectors; the result is parallel to the input.
type Clusterer interface {
	Cluster(vectors [][]float64) ([]similarity.Assignment, error)
}

// Orchestrator runs the labeling pipeline.
type Orchestrator struct {
	embedder    FieldEmbedder
	clusterer   Clusterer
	labeler     TitleLabeler
	batches     metric.Int64Counter
	articles    metric.Int64Counter
	concurrency int
}

// New creates an Orchestrator. concurrency <= 0 means DefaultConcurrency.
func New(embedder FieldEmbedder, clusterer Clusterer, labeler TitleLabeler, concurrency int) *Orchestrator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	meter := otel.Meter("github.com/thebtf/newslabels/internal/pipeline")
	batches, err := meter.Int64Counter("newslabels.pipeline.batches",
		metric.WithDescription("Processed batches by result"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create batch counter")
	}
	articles, err := meter.Int64Counter("newslabels.pipeline.articles",
		metric.WithDescription("Processed articles by outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create article counter")
	}

	return &Orchestrator{
		embedder:    embedder,
		clusterer:   clusterer,
		labeler:     labeler,
		batches:     batches,
		articles:    articles,
		concurrency: concurrency,
	}
}

// Process labels articles in place and returns the same slice.
//
// Every article is embedded from [title, content]; once all embeddings are
// available the whole batch is clustered, one label is generated per cluster
// from its members' titles, and that label is set on every member. Noise
// articles are left untouched. Any failure aborts the whole batch.
func (o *Orchestrator) Process(ctx context.Context, credential string, articles []*models.Article) ([]*models.Article, error) {
	if len(articles) == 0 {
		return articles, nil
	}
	start := time.Now()

	labeled, err := o.process(ctx, credential, articles)
	o.recordBatch(ctx, err)
	if err != nil {
		return nil, err
	}
	o.recordArticles(ctx, "labeled", labeled)
	o.recordArticles(ctx, "noise", len(articles)-labeled)

	log.Debug().
		Int("articles", len(articles)).
		Int("labeled", labeled).
		Dur("took", time.Since(start)).
		Msg("Batch labeled")

	return articles, nil
}

// process runs the pipeline and returns the number of labeled articles.
func (o *Orchestrator) process(ctx context.Context, credential string, articles []*models.Article) (int, error) {
	// Embed every article
	embeddings, err := o.embed(ctx, credential, articles)
	if err != nil {
		return 0, err
	}

	// Cluster the whole batch
	assignments, err := o.clusterer.Cluster(embeddings)
	if err != nil {
		return 0, fmt.Errorf("cluster embeddings: %w", err)
	}
	if len(assignments) != len(articles) {
		return 0, fmt.Errorf("clusterer returned %d assignments for %d articles", len(assignments), len(articles))
	}

	// Label each cluster
	groups := similarity.Groups(assignments)
	labels, err := o.label(ctx, credential, articles, groups)
	if err != nil {
		return 0, err
	}

	// Labels are attached only after every cluster succeeded.
	labeled := 0
	for id, members := range groups {
		for _, i := range members {
			articles[i].SetLabel(labels[id])
		}
		labeled += len(members)
	}
	log.Debug().Int("clusters", len(groups)).Msg("Clusters labeled")
	return labeled, nil
}

func (o *Orchestrator) recordBatch(ctx context.Context, err error) {
	if o.batches == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.batches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (o *Orchestrator) recordArticles(ctx context.Context, outcome string, n int) {
	if o.articles == nil || n == 0 {
		return
	}
	o.articles.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (o *Orchestrator) embed(ctx context.Context, credential string, articles []*models.Article) ([][]float64, error) {
	embeddings := make([][]float64, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, a := range articles {
		i, a := i, a
		g.Go(func() error {
			vec, err := o.embedder.EmbedFields(gctx, credential, a.Fields())
			if err != nil {
				return fmt.Errorf("embed article %d: %w", i, err)
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (o *Orchestrator) label(ctx context.Context, credential string, articles []*models.Article, groups map[similarity.ClusterID][]int) (map[similarity.ClusterID]string, error) {
	labels := make(map[similarity.ClusterID]string, len(groups))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for id, members := range groups {
		id := id
		titles := make([]string, len(members))
		for j, i := range members {
			titles[j] = articles[i].Title
		}
		g.Go(func() error {
			label, err := o.labeler.LabelTitles(gctx, credential, titles)
			if err != nil {
				return fmt.Errorf("label cluster of %d articles: %w", len(titles), err)
			}
			mu.Lock()
			labels[id] = label
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return labels, nil
}
