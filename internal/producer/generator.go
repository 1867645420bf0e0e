// Package producer emits synthetic posts onto the posts queue at a fixed cadence.
package producer

import (
	"sync"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/service/dto"
)

// Generator produces fake posts and authors. A zero seed draws a random one.
type Generator struct {
	mu          sync.Mutex
	faker       *gofakeit.Faker
	maxAuthorID int
}

func NewGenerator(seed uint64, maxAuthorID int) *Generator {
	if maxAuthorID <= 0 {
		maxAuthorID = 100
	}
	return &Generator{
		faker:       gofakeit.New(seed),
		maxAuthorID: maxAuthorID,
	}
}

// Post returns a post whose author id lies in [1, maxAuthorID].
func (g *Generator) Post() dto.PostV1 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return dto.PostV1{
		Title:    g.faker.LoremIpsumSentence(g.faker.IntRange(3, 8)),
		Content:  g.faker.LoremIpsumParagraph(1, 3, 12, " "),
		AuthorID: dto.NewAuthorRef(int64(g.faker.IntRange(1, g.maxAuthorID))),
	}
}

// Authors returns authors with ids 1..n, matching the range Post draws from.
func (g *Generator) Authors(n int) []model.Author {
	g.mu.Lock()
	defer g.mu.Unlock()

	authors := make([]model.Author, 0, n)
	for i := 1; i <= n; i++ {
		authors = append(authors, model.Author{
			ID:    int64(i),
			Name:  g.faker.Name(),
			Email: g.faker.Email(),
		})
	}
	return authors
}
