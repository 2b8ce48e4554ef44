package model

// Asset 文件元数据表
type Asset struct {
	BaseModel
	Key         string `gorm:"column:key;size:512;uniqueIndex"`
	URL         string `gorm:"column:url;size:1024"`
	Name        string `gorm:"column:name;size:255"`
	ContentType string `gorm:"column:content_type;size:128"`
	Scene       string `gorm:"column:scene;size:64;index"`
	Size        int64  `gorm:"column:size"`
	IsPrivate   bool   `gorm:"column:is_private"`
}

func (Asset) TableName() string {
	return "assets"
}
