package session

import (
	"context"

	"github.com/universal-adapter/hubctl/internal/api"
)

// FrameStream yields raw discovery frames until an error (io.EOF on a clean
// close)
type FrameStream interface {
	Next() (string, error)
	Close() error
}

// Backend is the part of the hub API a session needs
type Backend interface {
	OpenDiscoveryStream(ctx context.Context, conversationID string) (FrameStream, error)
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	SearchTools(ctx context.Context, query string, limit int) (*api.SearchResult, error)
	GetToolCode(ctx context.Context, name string) (*api.ToolCode, error)
}

type clientBackend struct {
	*api.Client
}

// FromClient adapts an API client to Backend
func FromClient(c *api.Client) Backend {
	return clientBackend{Client: c}
}

func (b clientBackend) OpenDiscoveryStream(ctx context.Context, conversationID string) (FrameStream, error) {
	s, err := b.Client.OpenDiscoveryStream(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s, nil
}
