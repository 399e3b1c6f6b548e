package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportBatch = 500

type parquetRow struct {
	ID         string `parquet:"name=id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Account    string `parquet:"name=account, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes string `parquet:"name=attributes, type=UTF8, encoding=PLAIN_DICTIONARY"`
	EmittedAt  string `parquet:"name=emitted_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes every journal record in sequence order to w as a
// Snappy-compressed parquet file and returns the number of rows written.
func (j *Journal) ExportParquet(ctx context.Context, w io.Writer) (int, error) {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var after uint64
	for {
		var records []Record
		err := j.db.WithContext(ctx).
			Where("sequence > ?", after).
			Order("sequence ASC").
			Limit(exportBatch).
			Find(&records).Error
		if err != nil {
			return written, fmt.Errorf("journal: export query: %w", err)
		}
		for _, record := range records {
			row := &parquetRow{
				ID:         record.ID.String(),
				Sequence:   int64(record.Sequence),
				Type:       record.Type,
				Account:    record.Account,
				Attributes: record.Attributes,
				EmittedAt:  record.EmittedAt.UTC().Format(time.RFC3339),
			}
			if err := pw.Write(row); err != nil {
				return written, fmt.Errorf("journal: write parquet row: %w", err)
			}
			written++
			after = record.Sequence
		}
		if len(records) < exportBatch {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("journal: finalise parquet: %w", err)
	}
	return written, nil
}
