package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is one logged query.
type Entry struct {
	Time      time.Time `json:"time"`
	Transport string    `json:"transport"`
	Source    string    `json:"source"`
	QName     string    `json:"qname"`
	QType     uint16    `json:"qtype"`
	RCode     uint16    `json:"rcode"`
	Truncated bool      `json:"truncated"`
}

// QueryLogOptions tunes the background writer.
type QueryLogOptions struct {
	QueueSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// QueryLog is the sampled query log store. ObserveQuery enqueues
// without blocking; a background goroutine batches inserts.
type QueryLog struct {
	conn    *sql.DB
	logger  *slog.Logger
	queue   chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	flush   time.Duration
}

// OpenQueryLog opens the store at path and starts the writer.
func OpenQueryLog(path string, opts QueryLogOptions) (*QueryLog, error) {
	conn, err := open(path)
	if err != nil {
		return nil, err
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 4096
	}
	flush := opts.FlushInterval
	if flush <= 0 {
		flush = 5 * time.Second
	}

	q := &QueryLog{
		conn:   conn,
		logger: opts.Logger,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
		flush:  flush,
	}
	q.wg.Add(1)
	go q.writer()
	return q, nil
}

// ObserveQuery implements the server's query observer. It never
// blocks: when the queue is full the sample is counted as dropped.
func (q *QueryLog) ObserveQuery(transport, source, qname string, qtype, rcode uint16, truncated bool) {
	e := Entry{
		Time:      time.Now(),
		Transport: transport,
		Source:    source,
		QName:     qname,
		QType:     qtype,
		RCode:     rcode,
		Truncated: truncated,
	}
	select {
	case q.queue <- e:
	default:
		q.dropped.Add(1)
	}
}

// Dropped reports how many samples were discarded on a full queue.
func (q *QueryLog) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops the writer, flushing queued samples, and closes the
// database.
func (q *QueryLog) Close() error {
	close(q.done)
	q.wg.Wait()
	return q.conn.Close()
}

// writer drains the queue into batched inserts.
func (q *QueryLog) writer() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.flush)
	defer ticker.Stop()

	batch := make([]Entry, 0, 256)
	for {
		select {
		case e := <-q.queue:
			batch = append(batch, e)
			if len(batch) >= cap(batch) {
				q.insert(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				q.insert(batch)
				batch = batch[:0]
			}
		case <-q.done:
			// Final drain.
			for {
				select {
				case e := <-q.queue:
					batch = append(batch, e)
				default:
					if len(batch) > 0 {
						q.insert(batch)
					}
					return
				}
			}
		}
	}
}

func (q *QueryLog) insert(batch []Entry) {
	tx, err := q.conn.Begin()
	if err != nil {
		q.logWriteError(err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO query_log (ts, transport, source, qname, qtype, rcode, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		q.logWriteError(err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		truncated := 0
		if e.Truncated {
			truncated = 1
		}
		if _, err := stmt.Exec(e.Time.Unix(), e.Transport, e.Source, e.QName, e.QType, e.RCode, truncated); err != nil {
			q.logWriteError(err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		q.logWriteError(err)
	}
}

func (q *QueryLog) logWriteError(err error) {
	if q.logger != nil {
		q.logger.Warn("query log write failed", "err", err)
	}
}

// Recent returns up to limit entries, newest first.
func (q *QueryLog) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := q.conn.Query(`
		SELECT ts, transport, source, qname, qtype, rcode, truncated
		FROM query_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query log read: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e         Entry
			ts        int64
			truncated int
		)
		if err := rows.Scan(&ts, &e.Transport, &e.Source, &e.QName, &e.QType, &e.RCode, &truncated); err != nil {
			return nil, fmt.Errorf("query log scan: %w", err)
		}
		e.Time = time.Unix(ts, 0)
		e.Truncated = truncated == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary aggregates rcode counts since the given time.
func (q *QueryLog) Summary(since time.Time) (map[uint16]uint64, error) {
	rows, err := q.conn.Query(`
		SELECT rcode, COUNT(*) FROM query_log WHERE ts >= ? GROUP BY rcode
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query log summary: %w", err)
	}
	defer rows.Close()

	out := make(map[uint16]uint64)
	for rows.Next() {
		var (
			rcode uint16
			n     uint64
		)
		if err := rows.Scan(&rcode, &n); err != nil {
			return nil, fmt.Errorf("query log scan: %w", err)
		}
		out[rcode] = n
	}
	return out, rows.Err()
}
