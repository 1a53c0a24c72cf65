package main

import (
	"context"
	"log"

	"github.com/comfforts/logger"
	emb "github.com/hankgalt/textembed"
	"github.com/hankgalt/textembed/pkg/domain"
)

func main() {
	l := logger.GetSlogLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, l)

	opts := emb.DefaultInitOptions()
	opts.Model = domain.BGESmallENV15
	opts.ExecutionProviders = []domain.ExecutionProvider{domain.ProviderCUDA}

	model, err := emb.NewTextEmbedding(ctx, opts)
	if err != nil {
		log.Fatal(err)
	}
	defer model.Close(ctx)

	documents := []string{
		"passage: Hello, World!",
		"query: Hello, World!",
		"passage: This is an example passage.",
		// You can leave out the prefix but it's recommended
		"textembed is licensed under MIT",
	}

	// Generate embeddings with the default batch size, 256
	embeddings, err := model.Embed(ctx, documents, 0)
	if err != nil {
		log.Fatal(err)
	}

	l.Info("got embeddings", "embeddings-dimensions", len(embeddings[0]), "num-embeddings", len(embeddings))
}
