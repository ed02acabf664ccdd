package ml

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"incomeserve/observation"
)

// Provider holds the current artifact and swaps it atomically when
// the files in the model directory change. Handlers score through the
// provider and never hold an artifact across requests.
type Provider struct {
	dir string

	mu       sync.RWMutex
	artifact *Artifact

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewProvider loads the artifact from dir. Loading must succeed at
// startup; later reload failures keep the previous artifact.
func NewProvider(dir string) (*Provider, error) {
	artifact, err := LoadArtifact(dir)
	if err != nil {
		return nil, err
	}
	return &Provider{dir: dir, artifact: artifact, done: make(chan struct{})}, nil
}

// Artifact returns the current pipeline artifact.
func (p *Provider) Artifact() *Artifact {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.artifact
}

// Score runs an observation through the current artifact.
func (p *Provider) Score(obs *observation.Observation) (int, float64, error) {
	return p.Artifact().Score(obs)
}

// Watch starts reloading the artifact when the model directory
// changes. Events are debounced so a multi-file artifact refresh
// triggers one reload.
func (p *Provider) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return err
	}
	p.watcher = watcher

	go p.loop()
	return nil
}

// Close stops the watcher.
func (p *Provider) Close() {
	p.once.Do(func() {
		close(p.done)
		if p.watcher != nil {
			p.watcher.Close()
		}
	})
}

func (p *Provider) loop() {
	var timer *time.Timer
	const settle = 250 * time.Millisecond

	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(settle, p.reload)
			} else {
				timer.Reset(settle)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			zap.S().Warnw("model watcher error", "err", err)
		case <-p.done:
			return
		}
	}
}

func (p *Provider) reload() {
	artifact, err := LoadArtifact(p.dir)
	if err != nil {
		zap.S().Errorw("model reload failed, keeping current artifact", "dir", p.dir, "err", err)
		return
	}

	p.mu.Lock()
	p.artifact = artifact
	p.mu.Unlock()

	zap.S().Infow("model artifact reloaded", "dir", p.dir, "columns", len(artifact.Columns))
}
