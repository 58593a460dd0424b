package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// CreateBatch submits a message batch and returns the batch ID.
func (c *Client) CreateBatch(ctx context.Context, requests []anthropic.MessageBatchNewParamsRequest) (string, error) {
	batch, err := c.api.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{
		Requests: requests,
	})
	if err != nil {
		return "", fmt.Errorf("create message batch: %w", err)
	}
	return batch.ID, nil
}

// GetBatch retrieves a batch's processing status.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*anthropic.MessageBatch, error) {
	batch, err := c.api.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("retrieve batch %s: %w", batchID, err)
	}
	return batch, nil
}

// BatchResults drains all individual results for an ended batch.
func (c *Client) BatchResults(ctx context.Context, batchID string) ([]anthropic.MessageBatchIndividualResponse, error) {
	stream := c.api.Messages.Batches.ResultsStreaming(ctx, batchID)
	var out []anthropic.MessageBatchIndividualResponse
	for stream.Next() {
		out = append(out, stream.Current())
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("read batch results %s: %w", batchID, err)
	}
	return out, nil
}
