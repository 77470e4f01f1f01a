package db

import (
	"context"
)

// Client defines the database interface
type Client interface {
	GetPolicy(ctx context.Context, chatID int64) (*ChatPolicy, error)
	SetPolicy(ctx context.Context, policy *ChatPolicy) error
	Close() error
}
