package data

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/sober-studio/asset-vault-go-kratos/internal/biz"
	"github.com/sober-studio/asset-vault-go-kratos/internal/conf"
	"github.com/sober-studio/asset-vault-go-kratos/internal/data/model"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/idgen"
	"github.com/sober-studio/asset-vault-go-kratos/internal/pkg/idgen/snowflake"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewDB,
	NewRedis,
	NewIDGenerator,
	NewAssetRepo,
	NewRedisURLCache,
	wire.Bind(new(biz.Transaction), new(*Data)),
)

// Data .
// 注意：所有需要关闭的资源必须在 cleanup 中显式处理
type Data struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewData .
// 依赖 idgen 以保证雪花节点在仓储使用前注册到 model 层
func NewData(c *conf.Data, logger log.Logger, db *gorm.DB, rdb *redis.Client, _ idgen.IDGenerator) (*Data, func(), error) {
	cleanup := func() {
		log.NewHelper(logger).Info("closing the data resources")
		// GORM 的连接池由标准库 sql.DB 管理，不需要手动关闭
		if err := rdb.Close(); err != nil {
			log.NewHelper(logger).Error(err)
		}
	}

	return &Data{
		db:  db,
		rdb: rdb,
	}, cleanup, nil
}

// NewDB 初始化数据库 (GORM)
func NewDB(c *conf.Data, l log.Logger) *gorm.DB {
	var dialector gorm.Dialector
	switch c.Database.Driver {
	case "postgres":
		dialector = postgres.Open(c.Database.Source)
	case "mysql":
		dialector = mysql.Open(c.Database.Source)
	default:
		// 默认使用 Postgres
		dialector = postgres.Open(c.Database.Source)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(l),
	})
	if err != nil {
		log.NewHelper(l).Fatalf("failed opening connection to database: %v", err)
	}

	if err := db.AutoMigrate(&model.Asset{}); err != nil {
		log.NewHelper(l).Errorf("auto migrate failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.NewHelper(l).Fatalf("failed to get sql DB from gorm: %v", err)
	}

	if c.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(int(c.Database.MaxIdleConns))
	} else {
		sqlDB.SetMaxIdleConns(10)
	}

	if c.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(int(c.Database.MaxOpenConns))
	} else {
		sqlDB.SetMaxOpenConns(100)
	}

	if c.Database.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.Database.ConnMaxLifetime) * time.Second)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return db
}

// NewRedis 初始化 Redis 客户端
func NewRedis(c *conf.Data, l log.Logger) *redis.Client {
	poolSize := 10
	if c.Redis.PoolSize > 0 {
		poolSize = int(c.Redis.PoolSize)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Redis.Addr,
		Password:     c.Redis.Password,
		DB:           int(c.Redis.Database),
		ReadTimeout:  time.Duration(c.Redis.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(c.Redis.WriteTimeout) * time.Second,
		PoolSize:     poolSize,
	})

	ctx := context.Background()
	helper := log.NewHelper(l)

	// 简单重试 3 次
	for i := 0; i < 3; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err == nil {
			cancel()
			return rdb
		}
		cancel()
		helper.Infof("failed connecting to redis, retrying... (%d/3)", i+1)
		time.Sleep(1 * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		helper.Fatalf("failed connecting to redis: %v", err)
	}

	return rdb
}

// contextTxKey 事务在 Context 中的 Key
type contextTxKey struct{}

// InTx 事务包装器实现 (biz.Transaction 接口)
func (d *Data) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx = context.WithValue(ctx, contextTxKey{}, tx)
		return fn(ctx)
	})
}

// DB 返回 GORM 实例（事务上下文中返回事务对象）
func (d *Data) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return d.db.WithContext(ctx)
}

// RDB 返回 Redis 客户端
func (d *Data) RDB() *redis.Client {
	return d.rdb
}

// NewIDGenerator 初始化 ID 生成器
func NewIDGenerator(app *conf.Application) idgen.IDGenerator {
	g := snowflake.NewSnowflake(app.WorkerId)
	model.SetIDGenerator(g)
	return g
}
