// Package progress counts what an import run has done. Counters are atomic so every
// worker can update them without coordination; a nil *Tracker ignores all updates.
package progress

import (
	"sync/atomic"
	"time"
)

type Tracker struct {
	started time.Time

	opsPlanned    atomic.Int64
	opsWritten    atomic.Int64
	opsFailed     atomic.Int64
	uploads       atomic.Int64
	uploadFailed  atomic.Int64
	uploadBytes   atomic.Int64
	missingAssets atomic.Int64
	contentDone   atomic.Int64
	contentTotal  atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{started: time.Now()}
}

// Snapshot is a point-in-time copy, published as JSON.
type Snapshot struct {
	OpsPlanned    int64         `json:"opsPlanned"`
	OpsWritten    int64         `json:"opsWritten"`
	OpsFailed     int64         `json:"opsFailed"`
	Uploads       int64         `json:"uploads"`
	UploadFailed  int64         `json:"uploadFailed"`
	UploadBytes   int64         `json:"uploadBytes"`
	MissingAssets int64         `json:"missingAssets"`
	ContentDone   int64         `json:"contentDone"`
	ContentTotal  int64         `json:"contentTotal"`
	Elapsed       time.Duration `json:"elapsedNs"`
	Done          bool          `json:"done"`
}

func (t *Tracker) PlanOps(n int) {
	if t != nil {
		t.opsPlanned.Add(int64(n))
	}
}

func (t *Tracker) OpsWritten(n int) {
	if t != nil {
		t.opsWritten.Add(int64(n))
	}
}

func (t *Tracker) OpsFailed(n int) {
	if t != nil {
		t.opsFailed.Add(int64(n))
	}
}

func (t *Tracker) Uploaded(bytes int64) {
	if t != nil {
		t.uploads.Add(1)
		t.uploadBytes.Add(bytes)
	}
}

func (t *Tracker) UploadFailed() {
	if t != nil {
		t.uploadFailed.Add(1)
	}
}

func (t *Tracker) MissingAsset() {
	if t != nil {
		t.missingAssets.Add(1)
	}
}

func (t *Tracker) PlanContent(n int) {
	if t != nil {
		t.contentTotal.Add(int64(n))
	}
}

func (t *Tracker) ContentDone() {
	if t != nil {
		t.contentDone.Add(1)
	}
}

func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	return Snapshot{
		OpsPlanned:    t.opsPlanned.Load(),
		OpsWritten:    t.opsWritten.Load(),
		OpsFailed:     t.opsFailed.Load(),
		Uploads:       t.uploads.Load(),
		UploadFailed:  t.uploadFailed.Load(),
		UploadBytes:   t.uploadBytes.Load(),
		MissingAssets: t.missingAssets.Load(),
		ContentDone:   t.contentDone.Load(),
		ContentTotal:  t.contentTotal.Load(),
		Elapsed:       time.Since(t.started),
	}
}
