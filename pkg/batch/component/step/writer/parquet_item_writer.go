// Package writer provides item writers that persist chunks to object storage and
// relational databases.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	storage "github.com/tigerroll/surfin-engine/pkg/batch/adapter/storage"
	port "github.com/tigerroll/surfin-engine/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-engine/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetItemWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection under surfin.storage.
	StorageRef string `yaml:"storage_ref"`
	// Bucket overrides the default bucket of the connection.
	Bucket string `yaml:"bucket"`
	// OutputBaseDir is the object prefix of the exported files (e.g., "weather/hourly").
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `yaml:"compression_type"`
}

// ParquetItemWriter writes each chunk as parquet objects, one per partition key, and
// uploads them through a storage connection. T must be a struct with parquet tags.
//
// Object names carry the writer name and a part number saved in the step context, so
// a restarted step never overwrites the files of committed chunks. A chunk that rolls
// back after its upload leaves its objects behind; they are replaced when the part
// number is reused.
type ParquetItemWriter[T any] struct {
	name          string
	config        ParquetWriterConfig
	resolver      storage.StorageConnectionResolver
	itemPrototype *T
	partitionKey  func(T) (string, error)
	codec         parquet.CompressionCodec

	conn storage.StorageConnection
	part int64
}

var (
	_ port.ItemWriter[any] = (*ParquetItemWriter[any])(nil)
	_ port.ItemStream      = (*ParquetItemWriter[any])(nil)
)

// NewParquetItemWriter creates a writer from properties (see ParquetWriterConfig).
// partitionKey may be nil; otherwise it returns a path segment such as "dt=2024-01-01".
func NewParquetItemWriter[T any](
	name string,
	properties map[string]interface{},
	resolver storage.StorageConnectionResolver,
	partitionKey func(T) (string, error),
) (*ParquetItemWriter[T], error) {
	var cfg ParquetWriterConfig
	if err := configbinder.Bind(properties, &cfg); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("Failed to decode ParquetItemWriter properties for %s", name), err, false, false)
	}
	if cfg.StorageRef == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetItemWriter '%s' requires 'storage_ref' property.", name)
	}
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewBatchErrorf("writer", "ParquetItemWriter '%s' requires 'output_base_dir' property.", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	codec, err := compressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("Invalid compression type for ParquetItemWriter '%s'", name), err, false, false)
	}
	return &ParquetItemWriter[T]{
		name:          name,
		config:        cfg,
		resolver:      resolver,
		itemPrototype: new(T),
		partitionKey:  partitionKey,
		codec:         codec,
	}, nil
}

func (w *ParquetItemWriter[T]) partKey() string {
	return w.name + ".part.count"
}

// Open resolves the storage connection and restores the part number.
func (w *ParquetItemWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.config.StorageRef)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("Failed to resolve storage connection '%s' for ParquetItemWriter '%s'", w.config.StorageRef, w.name), err, false, false)
	}
	w.conn = conn
	w.part = 0
	if n, ok := ec.GetInt64(w.partKey()); ok {
		w.part = n
	}
	logger.Infof("ParquetItemWriter '%s' opened. Target storage: %s, Base directory: %s, next part: %d", w.name, w.config.StorageRef, w.config.OutputBaseDir, w.part)
	return nil
}

// Update saves the part number of the next chunk.
func (w *ParquetItemWriter[T]) Update(ctx context.Context, ec model.ExecutionContext) error {
	ec.Put(w.partKey(), w.part)
	return nil
}

// Close leaves the connection to its provider, which closes it at shutdown.
func (w *ParquetItemWriter[T]) Close(ctx context.Context) error {
	w.conn = nil
	return nil
}

// Write encodes items grouped by partition key and uploads one object per group.
func (w *ParquetItemWriter[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if w.conn == nil {
		return exception.NewFatalError("writer", fmt.Sprintf("ParquetItemWriter '%s' is not open", w.name), nil)
	}

	groups := make(map[string][]T)
	for _, item := range items {
		key := ""
		if w.partitionKey != nil {
			var err error
			if key, err = w.partitionKey(item); err != nil {
				return exception.NewBatchError("writer", fmt.Sprintf("Failed to get partition key for item in ParquetItemWriter '%s'", w.name), err, false, false)
			}
		}
		groups[key] = append(groups[key], item)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result *multierror.Error
	for _, key := range keys {
		objectName := path.Join(w.config.OutputBaseDir, key, fmt.Sprintf("%s-part-%05d.parquet", w.name, w.part))
		if err := w.upload(ctx, objectName, groups[key]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("ParquetItemWriter '%s' failed to write part %d", w.name, w.part), err, false, false)
	}
	w.part++
	return nil
}

func (w *ParquetItemWriter[T]) upload(ctx context.Context, objectName string, items []T) (err error) {
	buf := new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, w.itemPrototype, 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer for '%s': %w", objectName, err)
	}
	pw.CompressionType = w.codec
	pw.RowGroupSize = 128 * 1024 * 1024

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return fmt.Errorf("failed to encode item for '%s': %w", objectName, err)
		}
	}
	// The parquet library panics on some schema mismatches.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked while finishing '%s': %v", objectName, r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finish parquet file '%s': %w", objectName, err)
	}

	if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/vnd.apache.parquet"); err != nil {
		return fmt.Errorf("failed to upload '%s': %w", objectName, err)
	}
	logger.Debugf("ParquetItemWriter '%s': uploaded %d item(s) to %s.", w.name, len(items), objectName)
	return nil
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
