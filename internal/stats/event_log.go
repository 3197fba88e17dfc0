package stats

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"matchd/internal/metrics"
)

const (
	EventBufferSize    = 1024
	MaxEventsPerSec    = 10000
	MaxEventsPerMatch  = 200
	BatchFlushSize     = 64
	BatchFlushInterval = 100 * time.Millisecond
	MatchLimiterCleanup = 5 * time.Minute
)

type EventType string

const (
	EventDeath      EventType = "death"
	EventKill       EventType = "kill"
	EventCompletion EventType = "completion"
)

// Event is one record in the append-only telemetry log.
type Event struct {
	Sequence  uint64      `json:"seq"`
	Type      EventType   `json:"type"`
	Timestamp int64       `json:"ts"`
	MatchID   string      `json:"match_id"`
	Payload   interface{} `json:"payload"`
}

// EventLog is a bounded, rate-limited, asynchronously flushed append log.
// Grounded directly on the teacher's event_log.go: the same circular
// buffer, global+per-key token-bucket rate limiting, and batched file
// writer, rekeyed from per-player to per-match (a runaway match floods
// its own budget rather than the global one).
type EventLog struct {
	buffer    [EventBufferSize]Event
	writeHead uint64
	readHead  uint64

	globalLimiter *rate.Limiter
	matchLimiters sync.Map // map[string]*matchLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount uint64
	totalCount   uint64
	seq          uint64
}

type matchLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the async writer goroutine. filePath == "" disables disk
// persistence but still processes the buffer (tests can inspect
// GetStats()).
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}
	el.filePath = filePath
	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit appends an event, applying global and per-match rate limits as DoS
// protection against a runaway match flooding the log.
func (el *EventLog) Emit(eventType EventType, matchID string, payload interface{}) bool {
	if !el.running.Load() {
		return false
	}
	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		metrics.RecordEventLogStats(0, 1)
		return false
	}
	if matchID != "" {
		limiter := el.getMatchLimiter(matchID)
		if !limiter.Allow() {
			atomic.AddUint64(&el.droppedCount, 1)
			metrics.RecordEventLogStats(0, 1)
			return false
		}
	}

	head := atomic.AddUint64(&el.writeHead, 1)
	tail := atomic.LoadUint64(&el.readHead)
	if head-tail >= EventBufferSize {
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
		metrics.RecordEventLogStats(0, 1)
	}

	seq := atomic.AddUint64(&el.seq, 1)
	idx := (head - 1) % EventBufferSize
	el.buffer[idx] = Event{Sequence: seq, Type: eventType, Timestamp: time.Now().UnixNano(), MatchID: matchID, Payload: payload}

	atomic.AddUint64(&el.totalCount, 1)
	metrics.RecordEventLogStats(1, 0)
	return true
}

func (el *EventLog) getMatchLimiter(matchID string) *rate.Limiter {
	if entry, ok := el.matchLimiters.Load(matchID); ok {
		e := entry.(*matchLimiterEntry)
		e.lastUsed = time.Now()
		return e.limiter
	}
	entry := &matchLimiterEntry{
		limiter:  rate.NewLimiter(MaxEventsPerMatch, MaxEventsPerMatch/10),
		lastUsed: time.Now(),
	}
	actual, _ := el.matchLimiters.LoadOrStore(matchID, entry)
	return actual.(*matchLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()
	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
			return
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()
	ticker := time.NewTicker(MatchLimiterCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.cleanupMatchLimiters()
		}
	}
}

func (el *EventLog) cleanupMatchLimiters() {
	cutoff := time.Now().Add(-MatchLimiterCleanup)
	el.matchLimiters.Range(func(key, value interface{}) bool {
		entry := value.(*matchLimiterEntry)
		if entry.lastUsed.Before(cutoff) {
			el.matchLimiters.Delete(key)
		}
		return true
	})
}

func (el *EventLog) collectBatch(batch []Event) []Event {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)
	for i := tail; i < head && len(batch) < BatchFlushSize; i++ {
		idx := i % EventBufferSize
		batch = append(batch, el.buffer[idx])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&el.readHead, uint64(len(batch)))
	}
	return batch
}

func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()
	if el.file == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.file.Write(data)
		el.file.Write([]byte("\n"))
	}
}

func (el *EventLog) GetStats() map[string]interface{} {
	head := atomic.LoadUint64(&el.writeHead)
	tail := atomic.LoadUint64(&el.readHead)
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&el.totalCount),
		"dropped": atomic.LoadUint64(&el.droppedCount),
		"pending": head - tail,
		"running": el.running.Load(),
	}
}
