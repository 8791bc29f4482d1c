package gcs

import (
	"go.uber.org/fx"

	storage "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage"
)

// Module provides the GCS StorageProvider into the storage_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`),
	),
)
