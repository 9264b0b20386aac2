// Package store persists authored bots. The scenario document is stored
// as its canonical JSON encoding, so an export and a stored bot are the
// same bytes.
package store

import (
	"context"
	"time"

	"github.com/rendis/botforge/pkg/schema"
)

// Bot is a stored bot: identity plus its current scenario document.
type Bot struct {
	ID        string
	Name      string
	Scenario  *schema.ScenarioDocument
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BotUpdate describes a partial bot update. Nil fields are left unchanged.
type BotUpdate struct {
	Name     *string
	Scenario *schema.ScenarioDocument
}

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	CreateBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	GetBotByName(ctx context.Context, name string) (*Bot, error)
	UpdateBot(ctx context.Context, id string, update BotUpdate) error
	ListBots(ctx context.Context) ([]*Bot, error)
	DeleteBot(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
