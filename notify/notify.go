package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"detectcam/config"
	"detectcam/pipeline"
	"detectcam/video/process"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Notification is sent to all NotifyListeners registered with Notifier.
type Notification struct {
	TimeString string            `json:"time"`
	Identifier string            `json:"id"`
	Source     string            `json:"source"`
	Detection  process.Detection `json:"detection"`
}

type NotifyListener interface {
	Notify(n *Notification) error
}

// Notifier watches published snapshots and alerts listeners when an
// interesting detection appears, at most once per cooldown.
type Notifier struct {
	Listeners []NotifyListener
	// Config supplies the current notification settings.
	Config func() *config.Config

	last time.Time
	l    sync.Mutex
}

// Run consumes snapshots from store until ctx is done.
func (n *Notifier) Run(ctx context.Context, store *pipeline.Store) {
	var seq uint64
	for {
		snap, err := store.Wait(ctx, seq)
		if err != nil {
			return
		}
		seq = snap.Seq
		n.Consider(snap)
	}
}

func (n *Notifier) interesting(c *config.NotifyConfig) func(process.Detection) bool {
	return func(d process.Detection) bool {
		if d.Confidence < c.MinConfidence {
			return false
		}
		if len(c.Classes) == 0 {
			return true
		}
		for _, cls := range c.Classes {
			if strings.EqualFold(cls, d.ClassName) {
				return true
			}
		}
		return false
	}
}

// Consider sends a notification for the best interesting detection of snap,
// unless one was sent within the cooldown. It returns the notification sent.
func (n *Notifier) Consider(snap *pipeline.Snapshot) *Notification {
	c := n.Config()
	best, ok := process.Detections(snap.Meta.Detections).Best(n.interesting(&c.Notify))
	if !ok {
		return nil
	}

	n.l.Lock()
	defer n.l.Unlock()
	ts := snap.Meta.Timestamp
	if !n.last.IsZero() && ts.Sub(n.last) < c.Cooldown() {
		log.Debugf("Suppressing notification for %v during cooldown", best.ClassName)
		return nil
	}
	n.last = ts

	notification := &Notification{
		TimeString: ts.Local().Format("3:04 PM"),
		Identifier: uuid.NewString(),
		Source:     snap.Meta.Source.Label(),
		Detection:  best,
	}
	log.Infof("Sending notification: %v", spew.Sdump(notification))
	for _, l := range n.Listeners {
		go func(l NotifyListener) {
			if err := l.Notify(notification); err != nil {
				log.Errorf("Failed to send notification: %v", err)
			}
		}(l)
	}
	return notification
}
