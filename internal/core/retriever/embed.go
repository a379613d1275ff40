package retriever

import (
	"context"
	"errors"
	"strings"

	"book-indexer/config"
	"book-indexer/internal/core/text"
	"book-indexer/pkg/logger"
)

var ErrEmptyQuestion = errors.New("question is empty")

// EmbedQuestion embeds a single question. Diacritics are removed the same way
// they are for indexed chunks.
func (r *Retriever) EmbedQuestion(ctx context.Context, question string) ([]float32, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	vecs, err := r.embedder.Embed(ctx, []string{text.RemoveDiacritics(question)})
	if err != nil {
		logger.Error(err, "%v: embed question failed: %s", config.ModuleRetriever, question)
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return vecs[0], nil
}
