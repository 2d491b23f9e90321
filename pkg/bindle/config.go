package bindle

import (
	"github.com/bindlekit/bindle/pkg/core"
)

type Config = core.Config
type ParcelConfig = core.ParcelConfig
type CatalogConfig = core.CatalogConfig
type TransformConfig = core.TransformConfig
type SearchConfig = core.SearchConfig
type LimitsConfig = core.LimitsConfig
