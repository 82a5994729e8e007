package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	cyclesOK          int64
	cyclesUnavailable int64
	fetchRequests     int64
	fetchErrors       int64
	archiveWrites     int64
	latestWrites      int64

	warnsByComponent  sync.Map // map[string]*int64
	errorsByComponent sync.Map // map[string]*int64
	channels          sync.Map // map[string]*channelStat
)

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string)  { bump(&warnsByComponent, component) }
func recordError(component string) { bump(&errorsByComponent, component) }

// IncrementCycle counts one pipeline cycle by outcome.
func IncrementCycle(ok bool) {
	if ok {
		atomic.AddInt64(&cyclesOK, 1)
		return
	}
	atomic.AddInt64(&cyclesUnavailable, 1)
}

// IncrementFetch counts one upstream GET and the bytes it returned.
func IncrementFetch(size int, failed bool) {
	atomic.AddInt64(&fetchRequests, 1)
	if failed {
		atomic.AddInt64(&fetchErrors, 1)
		return
	}
	recordChannel("upstream_http", size)
}

func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	recordChannel("s3_archive_write", int(size))
}

func IncrementLatestWrite(size int) {
	atomic.AddInt64(&latestWrites, 1)
	recordChannel("redis_latest_write", size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// Counters returns a point-in-time copy of the pipeline counters.
func Counters() map[string]int64 {
	return map[string]int64{
		"cycles_ok":          atomic.LoadInt64(&cyclesOK),
		"cycles_unavailable": atomic.LoadInt64(&cyclesUnavailable),
		"fetch_requests":     atomic.LoadInt64(&fetchRequests),
		"fetch_errors":       atomic.LoadInt64(&fetchErrors),
		"archive_writes":     atomic.LoadInt64(&archiveWrites),
		"latest_writes":      atomic.LoadInt64(&latestWrites),
	}
}

func snapshotMap(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

// StartReport logs system and pipeline statistics every interval until ctx ends.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = float64(vm.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if nets, err := gnet.IOCounters(false); err == nil && len(nets) > 0 {
		bytesSent = nets[0].BytesSent
		bytesRecv = nets[0].BytesRecv
	}

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	counters := Counters()
	fields := Fields{
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memMB),
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
		"channels":       channelData,
		"warns":          snapshotMap(&warnsByComponent),
		"errors":         snapshotMap(&errorsByComponent),
	}
	for k, v := range counters {
		fields[k] = v
	}
	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
		{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	}
	names := make([]string, 0, len(counters))
	for k := range counters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(counters[name])),
		})
	}
	for name, stats := range channelData {
		dims := []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}}
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("ChannelMessages"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(stats["messages"]))},
			cwtypes.MetricDatum{MetricName: aws.String("ChannelBytes"), Unit: cwtypes.StandardUnitBytes, Dimensions: dims, Value: aws.Float64(float64(stats["bytes"]))},
		)
	}

	publishMetrics(ctx, data)
}
