package service

import (
	"context"
	"time"

	"holdem-service/internal/config"
	"holdem-service/internal/service/admin"
	"holdem-service/internal/service/auth"
	"holdem-service/internal/service/lifecycle"
	"holdem-service/internal/service/rake"
	"holdem-service/internal/service/table"
	"holdem-service/internal/service/user"
	"holdem-service/internal/service/wallet"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Container wires every service together and owns the shared handles.
type Container struct {
	DB  *gorm.DB
	RDB *redis.Client

	Auth      *auth.Service
	Admin     *admin.Service
	User      *user.Service
	Wallet    *wallet.Service
	Rake      *rake.Service
	Lifecycle *lifecycle.Service
	Table     *table.Service
}

func NewContainer(db *gorm.DB, rdb *redis.Client) *Container {
	game := config.GlobalConfig.Game

	walletSvc := wallet.NewService(db)
	rakeSvc := rake.NewService(db, game.DefaultRakeBP, game.DefaultRakeCap)
	lifecycleSvc := lifecycle.NewService(time.Duration(game.TableExpirySeconds) * time.Second)
	tableSvc := table.NewService(db, rdb, walletSvc, rakeSvc, lifecycleSvc, table.Config{
		InterHandWait: time.Duration(game.InterHandWaitSeconds) * time.Second,
	})

	return &Container{
		DB:        db,
		RDB:       rdb,
		Auth:      auth.NewService(db, rdb),
		Admin:     admin.NewService(db),
		User:      user.NewService(db),
		Wallet:    walletSvc,
		Rake:      rakeSvc,
		Lifecycle: lifecycleSvc,
		Table:     tableSvc,
	}
}

// Start runs one-time bootstrap work and background loops.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Admin.EnsureDefaultAdmin(ctx); err != nil {
		return err
	}
	c.Table.StartEventRelay(ctx)
	return nil
}
