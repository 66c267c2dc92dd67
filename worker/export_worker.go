package worker

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iabalyuk/etapy/storage"
)

// ExportWorker periodically writes a spreadsheet snapshot of all projects
type ExportWorker struct {
	storage      storage.StorageInterface
	path         string
	interval     time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	isRunning    bool
	runningMutex sync.Mutex

	statusMutex sync.RWMutex
	lastExport  time.Time
	lastErr     error
}

// NewExportWorkerConfig represents the configuration for the export worker
type NewExportWorkerConfig struct {
	Storage  storage.StorageInterface
	Path     string        // Target workbook
	Interval time.Duration // Time between exports
}

// NewExportWorker creates a new export worker instance
func NewExportWorker(config NewExportWorkerConfig) *ExportWorker {
	interval := config.Interval
	if interval <= 0 {
		interval = time.Hour
		log.Printf("Invalid or zero export interval provided, defaulting to %v", interval)
	}
	path := config.Path
	if path == "" {
		path = filepath.Join("exports", "projects.xlsx")
	}

	return &ExportWorker{
		storage:  config.Storage,
		path:     path,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the export worker
func (w *ExportWorker) Start() {
	w.runningMutex.Lock()
	defer w.runningMutex.Unlock()

	if w.isRunning {
		return
	}

	w.isRunning = true
	w.wg.Add(1)
	go w.run()
}

// Stop stops the worker and waits for a running export to finish
func (w *ExportWorker) Stop() {
	w.runningMutex.Lock()
	if !w.isRunning {
		w.runningMutex.Unlock()
		return
	}
	log.Println("Stopping export worker...")
	close(w.stopCh)
	w.isRunning = false
	w.runningMutex.Unlock()

	w.wg.Wait()
	log.Println("Export worker stopped.")
}

// run is the main worker loop
func (w *ExportWorker) run() {
	defer w.wg.Done()
	log.Printf("Export worker started (every %v to %s)", w.interval, w.path)

	w.ExportNow()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.ExportNow()
		case <-w.stopCh:
			return
		}
	}
}

// ExportNow writes the workbook immediately
func (w *ExportWorker) ExportNow() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		log.Printf("Warning: failed to create export directory: %v", err)
	}

	start := time.Now()
	err := storage.ExportWorkbook(w.storage, w.path)

	w.statusMutex.Lock()
	w.lastErr = err
	if err == nil {
		w.lastExport = start
	}
	w.statusMutex.Unlock()

	if err != nil {
		log.Printf("Error exporting projects to %s: %v", w.path, err)
		return err
	}
	log.Printf("Exported projects to %s in %v", w.path, time.Since(start).Round(time.Millisecond))
	return nil
}

// Status returns the time of the last successful export and the last error
func (w *ExportWorker) Status() (time.Time, error) {
	w.statusMutex.RLock()
	defer w.statusMutex.RUnlock()
	return w.lastExport, w.lastErr
}
