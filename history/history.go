// Package history keeps detections in a SQL database.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"detectcam/video/process"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	queueSize    = 64
)

var ErrQueueFull = errors.New("history queue full")

var (
	droppedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detectcam_history_dropped_batches_total",
		Help: "Detection batches dropped because the history queue was full.",
	})
	insertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detectcam_history_insert_failures_total",
		Help: "Detection batches the database rejected.",
	})
)

// Detection is one stored detection row.
type Detection struct {
	ID         uint      `gorm:"primaryKey"`
	Timestamp  time.Time `gorm:"index"`
	ClassID    int
	ClassName  string `gorm:"size:64;index"`
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

// Open connects to a MySQL database, e.g.
// "user:pass@tcp(127.0.0.1:3306)/detectcam?parseTime=true".
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Warn,
		}),
	})
}

// Store appends detections to the database. LogDetections only queues rows;
// Run performs the inserts.
type Store struct {
	db     *gorm.DB
	queue  chan []Detection
	insert func([]Detection) error
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Detection{}); err != nil {
		return nil, err
	}
	s := newStore(queueSize, func(rows []Detection) error {
		return db.Create(&rows).Error
	})
	s.db = db
	return s, nil
}

func newStore(size int, insert func([]Detection) error) *Store {
	return &Store{
		queue:  make(chan []Detection, size),
		insert: insert,
	}
}

// Rows converts the detections of one frame to database rows.
func Rows(t time.Time, dets []process.Detection) []Detection {
	rows := make([]Detection, 0, len(dets))
	for _, d := range dets {
		rows = append(rows, Detection{
			Timestamp:  t.UTC(),
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			X1:         d.Box.X1,
			Y1:         d.Box.Y1,
			X2:         d.Box.X2,
			Y2:         d.Box.Y2,
		})
	}
	return rows
}

// LogDetections queues the detections of one frame without blocking. When the
// queue is full the batch is dropped and ErrQueueFull returned.
func (s *Store) LogDetections(t time.Time, dets []process.Detection) error {
	if len(dets) == 0 {
		return nil
	}
	select {
	case s.queue <- Rows(t, dets):
		return nil
	default:
		droppedBatches.Inc()
		return ErrQueueFull
	}
}

// Run inserts queued batches until ctx is done.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rows := <-s.queue:
			if err := s.insert(rows); err != nil {
				insertFailures.Inc()
				log.Warnf("Failed to store %d detections: %v", len(rows), err)
			}
		}
	}
}

// Recent returns the newest detections, optionally restricted to a class.
func (s *Store) Recent(class string, limit int) ([]Detection, error) {
	q := s.db.Order("timestamp desc").Limit(limit)
	if class != "" {
		q = q.Where("class_name = ?", class)
	}
	var rows []Detection
	err := q.Find(&rows).Error
	return rows, err
}

func parseLimit(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// ServeHTTP lists recent detections. Accepts "class" and "limit" parameters.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := s.Recent(q.Get("class"), parseLimit(q.Get("limit")))
	if err != nil {
		log.Errorf("History query failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		log.Warnf("Failed to write history: %v", err)
	}
}
