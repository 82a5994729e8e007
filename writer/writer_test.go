package writer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	appconfig "optionflow/config"
	"optionflow/models"
)

func sampleResult(symbol string, strikes ...int) *models.Result {
	r := models.NewResult(symbol, time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC))
	r.Expiry = "28-Mar-2024"
	r.Timestamp = "25-Mar-2024 10:00:00"
	r.Underlying = 22010
	r.Summary.PCROI = models.Some(0.91)
	for _, k := range strikes {
		row := models.WindowRow{Strike: k}
		row.Call.OI, row.Call.LastPrice, row.Call.Strategy = 1200, 101.5, models.LongBuildup
		row.Put.OI, row.Put.LastPrice, row.Put.Strategy = 900, 88.25, models.ShortCovering
		r.Window = append(r.Window, row)
	}
	return r
}

func testConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Writer.Archive.Enabled = true
	cfg.Writer.Archive.MaxRows = 100
	return &cfg
}

func TestFlatten(t *testing.T) {
	r := sampleResult("NIFTY", 22050, 22000)
	rows := Flatten(r)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Strike != 22050 || rows[0].Symbol != "NIFTY" || rows[0].ResultID != r.ID.String() {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[0].CallStrategy != models.LongBuildup.String() || rows[0].PutLTP != 88.25 {
		t.Errorf("side fields not copied: %+v", rows[0])
	}
	if rows[0].PCROI == nil || *rows[0].PCROI != 0.91 {
		t.Errorf("pcr not copied")
	}

	if got := Flatten(models.Unavailable("NIFTY", time.Now(), "down")); len(got) != 0 {
		t.Errorf("unavailable result produced %d rows", len(got))
	}
}

func TestFlattenNAFigure(t *testing.T) {
	r := sampleResult("NIFTY", 22000)
	r.Summary.PCROI = models.NA()
	if rows := Flatten(r); rows[0].PCROI != nil {
		t.Errorf("expected null pcr for N/A figure")
	}
}

func TestEncodeParquet(t *testing.T) {
	data, err := EncodeParquet(Flatten(sampleResult("NIFTY", 22050, 22000, 21950)), "snappy")
	if err != nil {
		t.Fatalf("EncodeParquet: %v", err)
	}
	if len(data) < 8 || !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatalf("output is not a parquet file (%d bytes)", len(data))
	}
}

type recordingTarget struct {
	mu   sync.Mutex
	keys []string
	rows int
	err  error
}

func (t *recordingTarget) Name() string { return "memory" }

func (t *recordingTarget) Write(_ context.Context, key string, rows []ParquetRecord) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return 0, t.err
	}
	t.keys = append(t.keys, key)
	t.rows += len(rows)
	return int64(len(rows)), nil
}

func TestObjectKey(t *testing.T) {
	w := newArchiveWriter(testConfig(), nil, &recordingTarget{})
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	got := w.objectKey(partition{symbol: "NIFTY", expiry: "28-Mar-2024", date: "2024-03-25"}, id)
	want := "option_chain/symbol=NIFTY/expiry=28-Mar-2024/date=2024-03-25/6ba7b810-9dad-11d1-80b4-00c04fd430c8.parquet"
	if got != want {
		t.Fatalf("key = %s, want %s", got, want)
	}
}

func TestArchiveBuffersPerPartition(t *testing.T) {
	target := &recordingTarget{}
	w := newArchiveWriter(testConfig(), nil, target)

	w.add(sampleResult("NIFTY", 22050, 22000))
	w.add(sampleResult("NIFTY", 22100))
	if n := w.add(sampleResult("BANKNIFTY", 47000)); n != 4 {
		t.Fatalf("pending = %d, want 4", n)
	}
	w.add(models.Unavailable("FINNIFTY", time.Now(), "down"))

	w.flushBuffers("test")
	if len(target.keys) != 2 || target.rows != 4 {
		t.Fatalf("unexpected writes: %v (%d rows)", target.keys, target.rows)
	}
	if w.pending != 0 || len(w.buffer) != 0 {
		t.Fatalf("buffer not reset")
	}
}

func TestArchiveFlushesOnMaxRowsAndShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Writer.Archive.MaxRows = 2
	cfg.Writer.Archive.FlushInterval = time.Hour
	target := &recordingTarget{}
	ch := make(chan *models.Result, 4)
	w := newArchiveWriter(cfg, ch, target)

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ch <- sampleResult("NIFTY", 22050, 22000)
	ch <- sampleResult("NIFTY", 21950)
	close(ch)
	w.Stop()
	cancel()

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.rows != 3 {
		t.Fatalf("rows written = %d, want 3", target.rows)
	}
}

func TestArchiveWriteFailureIsLogged(t *testing.T) {
	target := &recordingTarget{err: errors.New("bucket gone")}
	w := newArchiveWriter(testConfig(), nil, target)
	w.add(sampleResult("NIFTY", 22000))
	w.flushBuffers("test")
	if w.pending != 0 {
		t.Fatalf("failed flush should still reset the buffer")
	}
}

func TestLocalTargetWritesParquet(t *testing.T) {
	dir := t.TempDir()
	target, err := newLocalTarget(dir, "gzip")
	if err != nil {
		t.Fatalf("newLocalTarget: %v", err)
	}
	key := "option_chain/symbol=NIFTY/expiry=28-Mar-2024/date=2024-03-25/a.parquet"
	size, err := target.Write(context.Background(), key, Flatten(sampleResult("NIFTY", 22000, 21950)))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if int64(len(data)) != size || !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Fatalf("unexpected file: %d bytes, reported %d", len(data), size)
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3TargetUploads(t *testing.T) {
	putter := &fakePutter{}
	target := &s3Target{bucket: "option-archive", compression: "snappy", version: "1.0.0", client: putter}

	size, err := target.Write(context.Background(), "k.parquet", Flatten(sampleResult("NIFTY", 22000)))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if *putter.input.Bucket != "option-archive" || *putter.input.Key != "k.parquet" {
		t.Errorf("unexpected target: %s/%s", *putter.input.Bucket, *putter.input.Key)
	}
	if putter.input.Metadata["optionflow-version"] != "1.0.0" {
		t.Errorf("metadata missing: %v", putter.input.Metadata)
	}
	if int64(len(putter.body)) != size || !bytes.HasPrefix(putter.body, []byte("PAR1")) {
		t.Errorf("uploaded body is not parquet")
	}
}

type fakeKafka struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestStreamWriterPublishesResults(t *testing.T) {
	fk := &fakeKafka{}
	ch := make(chan *models.Result, 2)
	sw := newStreamWriter(testConfig(), ch, fk)
	if err := sw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r := sampleResult("NIFTY", 22000)
	ch <- r
	close(ch)
	sw.Stop()

	fk.mu.Lock()
	defer fk.mu.Unlock()
	if len(fk.msgs) != 1 || !fk.closed {
		t.Fatalf("messages = %d, closed = %v", len(fk.msgs), fk.closed)
	}
	if string(fk.msgs[0].Key) != "NIFTY" || !strings.Contains(string(fk.msgs[0].Value), r.ID.String()) {
		t.Errorf("unexpected message: %s", fk.msgs[0].Value)
	}
}

func TestNewStreamWriterRequiresBrokers(t *testing.T) {
	if _, err := NewStreamWriter(testConfig(), nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestNewLatestStore(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Redis.URL = "not a url"
	if _, err := NewLatestStore(cfg, nil); err == nil {
		t.Fatalf("expected error for invalid redis url")
	}

	cfg.Storage.Redis.URL = "redis://localhost:6379/2"
	s, err := NewLatestStore(cfg, nil)
	if err != nil {
		t.Fatalf("NewLatestStore: %v", err)
	}
	if got := s.Key("NIFTY"); got != "optionflow:latest:NIFTY" {
		t.Errorf("key = %s", got)
	}
}
