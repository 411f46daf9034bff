package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/eventbus"
	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// wireEvents subscribes the Engine's own handlers to the events the
// Alert Router publishes, per spec §4.1's alert/effect table. Every
// handler here runs synchronously from drainAlerts, on the Engine
// Thread, so none of it needs its own locking.
func (e *Engine) wireEvents() {
	e.bus.Subscribe(session.TopicListenStatus, func(ev eventbus.Event) {
		le, ok := ev.(session.ListenStatusEvent)
		if !ok {
			return
		}
		if le.Err != nil {
			e.listenErr = le.Err.Error()
		} else {
			e.listenErr = ""
		}
	})

	e.bus.Subscribe(session.TopicResumeDataReady, func(ev eventbus.Event) {
		re, ok := ev.(session.ResumeDataReadyEvent)
		if !ok {
			return
		}
		e.onResumeDataReady(re)
	})

	e.bus.Subscribe(session.TopicMetadataPersisted, func(ev eventbus.Event) {
		me, ok := ev.(session.MetadataPersistedEvent)
		if !ok {
			return
		}
		e.onMetadataPersisted(me)
	})

	e.bus.Subscribe(session.TopicTorrentError, func(ev eventbus.Event) {
		te, ok := ev.(session.TorrentErrorEvent)
		if !ok {
			return
		}
		t := e.snap.Torrent(te.Hash)
		t.Error = &model.TorrentFault{Source: te.Source, Message: te.Err.Error()}
		t.BumpRevision()
	})

	e.bus.Subscribe(session.TopicTorrentAddFailed, func(ev eventbus.Event) {
		fe, ok := ev.(session.TorrentAddFailedEvent)
		if !ok {
			return
		}
		e.log.Warn("torrent add failed", zap.String("hash", fe.Hash.String()), zap.Error(fe.Err))
		delete(e.persisted, fe.Hash)
		e.store.DeleteTorrent(fe.Hash)
		e.ids.Forget(fe.Hash)
	})

	e.bus.Subscribe(session.TopicStorageMoveResult, func(ev eventbus.Event) {
		se, ok := ev.(session.StorageMoveResultEvent)
		if !ok {
			return
		}
		t := e.snap.Torrent(se.Hash)
		t.PendingMoveTo = ""
		if se.Err != nil {
			t.Error = &model.TorrentFault{Source: "storage", Message: se.Err.Error()}
		} else if p, ok := e.persisted[se.Hash]; ok {
			p.SavePath = se.NewPath
			e.persisted[se.Hash] = p
			e.store.UpdateSavePath(se.Hash, se.NewPath)
		}
		t.BumpRevision()
	})
}

// onResumeDataReady persists resume parameters (or logs a failure),
// clears the hash from the in-flight shutdown set, and records the
// alert time the shutdown deadline's quiet-period leg measures.
func (e *Engine) onResumeDataReady(ev session.ResumeDataReadyEvent) {
	e.lastResumeAlert = time.Now()
	delete(e.pendingResumeSaves, ev.Hash)

	if ev.Err != nil {
		e.log.Warn("save resume data failed", zap.String("hash", ev.Hash.String()), zap.Error(ev.Err))
		return
	}
	e.store.UpdateResumeData(ev.Hash, ev.Params)
	if p, ok := e.persisted[ev.Hash]; ok {
		p.ResumeData = ev.Params
		e.persisted[ev.Hash] = p
	}
}

func (e *Engine) onMetadataPersisted(ev session.MetadataPersistedEvent) {
	p, ok := e.persisted[ev.Hash]
	if !ok {
		return
	}
	p.MetadataFilePath = ev.Path
	e.persisted[ev.Hash] = p
	e.store.UpdateMetadata(ev.Hash, ev.Path, nil)
}
