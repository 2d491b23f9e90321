package core

type Config struct {
	Dir string // registry root

	Parcel    ParcelConfig
	Catalog   CatalogConfig
	Transform TransformConfig
	Search    SearchConfig
	Limits    LimitsConfig
}

type ParcelConfig struct {
	Dir            string
	MaxParcelBytes uint64
}

type CatalogConfig struct {
	Dir string
}

type TransformConfig struct {
	Name      string
	ZstdLevel int
}

type SearchConfig struct {
	DefaultLimit uint8
	MaxLimit     uint8
}

type LimitsConfig struct {
	MaxParcelsPerInvoice int
	MaxAnnotations       int
	MaxFeatureSets       int
	MaxMediaTypeLen      int
}
