package eventindex

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetEvent struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Height     int64  `parquet:"name=height, type=INT64"`
	TxHash     string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	VideoID    int64  `parquet:"name=video_id, type=INT64"`
	Actor      string `parquet:"name=actor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Subject    string `parquet:"name=subject, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every indexed event matching filter to path as a
// snappy-compressed parquet file and returns the number of rows written.
// The filter's limit is ignored; rows are streamed in pages.
func (s *Store) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("eventindex: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEvent), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("eventindex: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := filter
	page.Limit = MaxQueryLimit
	for {
		if err := ctx.Err(); err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		var rows []EventRow
		if err := page.apply(s.db.WithContext(ctx).Model(&EventRow{})).Order("seq ASC").Limit(page.Limit).Find(&rows).Error; err != nil {
			pw.WriteStop()
			file.Close()
			return written, fmt.Errorf("eventindex: read rows: %w", err)
		}
		for i := range rows {
			row := &rows[i]
			pr := &parquetEvent{
				Seq:        int64(row.Seq),
				Height:     int64(row.Height),
				TxHash:     row.TxHash,
				Type:       row.Type,
				VideoID:    int64(row.VideoID),
				Actor:      row.Actor,
				Subject:    row.Subject,
				Attributes: row.Attributes,
				Timestamp:  time.Unix(row.Timestamp, 0).UTC().Format(time.RFC3339),
			}
			if err := pw.Write(pr); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("eventindex: parquet write: %w", err)
			}
			written++
			page.AfterSeq = row.Seq
		}
		if len(rows) < page.Limit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("eventindex: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("eventindex: close parquet file: %w", err)
	}
	return written, nil
}
