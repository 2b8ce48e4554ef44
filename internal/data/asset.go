package data

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	"github.com/sober-studio/asset-vault-go-kratos/internal/biz"
	"github.com/sober-studio/asset-vault-go-kratos/internal/data/model"
)

var _ biz.AssetRepo = (*assetRepo)(nil)

type assetRepo struct {
	data *Data
	log  *log.Helper
}

func NewAssetRepo(data *Data, logger log.Logger) biz.AssetRepo {
	return &assetRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *assetRepo) CreateAsset(ctx context.Context, a *biz.Asset) (*biz.Asset, error) {
	m := &model.Asset{
		Key:         a.Key,
		URL:         a.URL,
		Name:        a.Name,
		ContentType: a.ContentType,
		Scene:       a.Scene,
		Size:        a.Size,
		IsPrivate:   a.IsPrivate,
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return r.toBiz(m), nil
}

func (r *assetRepo) GetAssetByKey(ctx context.Context, key string) (*biz.Asset, error) {
	var m model.Asset
	if err := r.data.DB(ctx).Where("key = ?", key).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrAssetNotFound
		}
		return nil, err
	}
	return r.toBiz(&m), nil
}

func (r *assetRepo) DeleteAssetByKey(ctx context.Context, key string) error {
	return r.data.DB(ctx).Where("key = ?", key).Delete(&model.Asset{}).Error
}

func (r *assetRepo) ListAssets(ctx context.Context, scene string, limit, offset int) ([]*biz.Asset, error) {
	db := r.data.DB(ctx).Model(&model.Asset{})
	if scene != "" {
		db = db.Where("scene = ?", scene)
	}

	var ms []model.Asset
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&ms).Error; err != nil {
		return nil, err
	}

	assets := make([]*biz.Asset, 0, len(ms))
	for i := range ms {
		assets = append(assets, r.toBiz(&ms[i]))
	}
	return assets, nil
}

func (r *assetRepo) toBiz(m *model.Asset) *biz.Asset {
	return &biz.Asset{
		ID:          m.ID,
		Key:         m.Key,
		URL:         m.URL,
		Name:        m.Name,
		ContentType: m.ContentType,
		Scene:       m.Scene,
		Size:        m.Size,
		IsPrivate:   m.IsPrivate,
		CreatedAt:   m.CreatedAt,
	}
}
