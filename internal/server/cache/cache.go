// Package cache keeps read-mostly room metadata close to the services.
// Only room rows are cached; membership and message data always come from
// the database.
package cache

import (
	"context"

	"github.com/dmitrijs2005/gophtalk/internal/server/models"
)

// RoomCache stores rooms by id. Get returns (nil, nil) on a miss.
type RoomCache interface {
	Get(ctx context.Context, id string) (*models.Room, error)
	Set(ctx context.Context, room *models.Room) error
}

// NopRoomCache never stores anything.
type NopRoomCache struct{}

func (NopRoomCache) Get(context.Context, string) (*models.Room, error) { return nil, nil }
func (NopRoomCache) Set(context.Context, *models.Room) error          { return nil }
