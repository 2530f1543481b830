// Package cluster groups raw items that describe the same story by
// density clustering over text embeddings.
package cluster

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Embedder turns texts into vectors, one per text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Service holds a single embedder instance that is built on first use.
// A failed build is remembered; later calls return the same error.
type Service struct {
	factory func() (Embedder, error)

	once sync.Once
	emb  Embedder
	err  error
}

// NewService wraps factory. It is not called until the first Embed.
func NewService(factory func() (Embedder, error)) *Service {
	return &Service{factory: factory}
}

// Embedder returns the shared instance, building it on the first call.
func (s *Service) Embedder() (Embedder, error) {
	s.once.Do(func() {
		if s.factory == nil {
			s.err = eris.New("cluster: no embedder configured")
		} else {
			s.emb, s.err = s.factory()
			if s.err == nil && s.emb == nil {
				s.err = eris.New("cluster: embedder factory returned nil")
			}
		}
		if s.err != nil {
			zap.L().Warn("cluster: embedder unavailable", zap.Error(s.err))
		}
	})
	return s.emb, s.err
}

// Embed implements Embedder through the shared instance.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	emb, err := s.Embedder()
	if err != nil {
		return nil, err
	}
	return emb.Embed(ctx, texts)
}
