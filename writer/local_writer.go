package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// localTarget writes parquet files below dir, mirroring the S3 key layout.
type localTarget struct {
	dir         string
	compression string
}

func newLocalTarget(dir, compression string) (*localTarget, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &localTarget{dir: dir, compression: compression}, nil
}

func (t *localTarget) Name() string { return "local" }

func (t *localTarget) Write(_ context.Context, key string, rows []ParquetRecord) (int64, error) {
	path := filepath.Join(t.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create partition directory: %w", err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(t.compression)

	for _, rec := range rows {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			fw.Close()
			return 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close parquet file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
