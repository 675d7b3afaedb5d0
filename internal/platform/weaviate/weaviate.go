package weaviate

import (
	"context"
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func New(ctx context.Context, host, scheme string) (*weaviate.Client, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client failed: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ready, err := client.Misc().ReadyChecker().Do(readyCtx)
	if err != nil {
		return nil, fmt.Errorf("check weaviate readiness failed: %w", err)
	}
	if !ready {
		return nil, fmt.Errorf("weaviate at %s is not ready", host)
	}
	return client, nil
}
