package site

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// Watcher polls the web root for changes and broadcasts a reload message
// when any file is added, removed, or modified. Polling avoids a platform
// notification dependency for what is a development-only convenience.
type Watcher struct {
	root     string
	interval time.Duration
	hub      *Hub
	done     chan struct{}
}

// ReloadMessage is what connected clients receive when the web root changes
const ReloadMessage = "reload"

// NewWatcher creates a watcher over root broadcasting to hub
func NewWatcher(root string, interval time.Duration, hub *Hub) *Watcher {
	return &Watcher{
		root:     root,
		interval: interval,
		hub:      hub,
		done:     make(chan struct{}),
	}
}

// Start begins polling in a background goroutine
func (w *Watcher) Start() {
	go w.loop()
}

// Stop terminates the polling loop
func (w *Watcher) Stop() {
	close(w.done)
}

func (w *Watcher) loop() {
	prev := w.snapshot()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			current := w.snapshot()
			if changed(prev, current) {
				log.Println("[Watch] Web root changed, broadcasting reload")
				w.hub.Broadcast(ReloadMessage)
			}
			prev = current
		}
	}
}

// fileState identifies a file version without hashing content
type fileState struct {
	modTime time.Time
	size    int64
}

// snapshot walks the web root collecting per-file state
func (w *Watcher) snapshot() map[string]fileState {
	state := make(map[string]fileState)

	filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		state[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		return nil
	})

	return state
}

// changed reports whether two snapshots differ
func changed(a, b map[string]fileState) bool {
	if len(a) != len(b) {
		return true
	}
	for path, sa := range a {
		sb, ok := b[path]
		if !ok || sa != sb {
			return true
		}
	}
	return false
}
