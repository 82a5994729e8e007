package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"optionflow/models"
)

// ParquetRecord is one strike of one result's window.
type ParquetRecord struct {
	ResultID    string   `parquet:"name=result_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol      string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Expiry      string   `parquet:"name=expiry, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp   string   `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	GeneratedAt int64    `parquet:"name=generated_at, type=INT64"`
	Underlying  float64  `parquet:"name=underlying, type=DOUBLE"`
	PCROI       *float64 `parquet:"name=pcr_oi, type=DOUBLE, repetitiontype=OPTIONAL"`
	Strike      int32    `parquet:"name=strike, type=INT32"`

	CallOI          float64 `parquet:"name=call_oi, type=DOUBLE"`
	CallChangeOI    float64 `parquet:"name=call_change_oi, type=DOUBLE"`
	CallVolume      float64 `parquet:"name=call_volume, type=DOUBLE"`
	CallValue       float64 `parquet:"name=call_value, type=DOUBLE"`
	CallIV          float64 `parquet:"name=call_iv, type=DOUBLE"`
	CallLTP         float64 `parquet:"name=call_ltp, type=DOUBLE"`
	CallClose       float64 `parquet:"name=call_close, type=DOUBLE"`
	CallPrevClose   float64 `parquet:"name=call_prev_close, type=DOUBLE"`
	CallPriceChange float64 `parquet:"name=call_price_change, type=DOUBLE"`
	CallStrategy    string  `parquet:"name=call_strategy, type=BYTE_ARRAY, convertedtype=UTF8"`

	PutOI          float64 `parquet:"name=put_oi, type=DOUBLE"`
	PutChangeOI    float64 `parquet:"name=put_change_oi, type=DOUBLE"`
	PutVolume      float64 `parquet:"name=put_volume, type=DOUBLE"`
	PutValue       float64 `parquet:"name=put_value, type=DOUBLE"`
	PutIV          float64 `parquet:"name=put_iv, type=DOUBLE"`
	PutLTP         float64 `parquet:"name=put_ltp, type=DOUBLE"`
	PutClose       float64 `parquet:"name=put_close, type=DOUBLE"`
	PutPrevClose   float64 `parquet:"name=put_prev_close, type=DOUBLE"`
	PutPriceChange float64 `parquet:"name=put_price_change, type=DOUBLE"`
	PutStrategy    string  `parquet:"name=put_strategy, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Flatten turns the window of r into parquet records. Results without data
// produce none.
func Flatten(r *models.Result) []ParquetRecord {
	if r == nil || !r.Available() {
		return nil
	}
	var pcr *float64
	if r.Summary.PCROI.Valid {
		v := r.Summary.PCROI.Value
		pcr = &v
	}

	out := make([]ParquetRecord, 0, len(r.Window))
	for _, row := range r.Window {
		out = append(out, ParquetRecord{
			ResultID:    r.ID.String(),
			Symbol:      r.Symbol,
			Expiry:      r.Expiry,
			Timestamp:   r.Timestamp,
			GeneratedAt: r.GeneratedAt.UnixMilli(),
			Underlying:  r.Underlying,
			PCROI:       pcr,
			Strike:      int32(row.Strike),

			CallOI:          row.Call.OI,
			CallChangeOI:    row.Call.ChangeOI,
			CallVolume:      row.Call.Volume,
			CallValue:       row.Call.Value,
			CallIV:          row.Call.IV,
			CallLTP:         row.Call.LastPrice,
			CallClose:       row.Call.Close,
			CallPrevClose:   row.Call.PrevClose,
			CallPriceChange: row.Call.PriceChange,
			CallStrategy:    row.Call.Strategy.String(),

			PutOI:          row.Put.OI,
			PutChangeOI:    row.Put.ChangeOI,
			PutVolume:      row.Put.Volume,
			PutValue:       row.Put.Value,
			PutIV:          row.Put.IV,
			PutLTP:         row.Put.LastPrice,
			PutClose:       row.Put.Close,
			PutPrevClose:   row.Put.PrevClose,
			PutPriceChange: row.Put.PriceChange,
			PutStrategy:    row.Put.Strategy.String(),
		})
	}
	return out
}

// memoryFileWriter implements source.ParquetFile over an in-memory buffer.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) { return mfw, nil }

// Seek only reports the current size; the writer never seeks backwards.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) { return mfw.buffer.Read(b) }

func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }

func (mfw *memoryFileWriter) Close() error { return nil }

func (mfw *memoryFileWriter) Bytes() []byte { return mfw.buffer.Bytes() }

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	}
	return parquet.CompressionCodec_UNCOMPRESSED
}

// EncodeParquet writes records to an in-memory parquet file.
func EncodeParquet(records []ParquetRecord, compression string) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
