package config

import (
	"path/filepath"
	"testing"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

func TestSetListenInterfaceNormalizesDefaults(t *testing.T) {
	svc := NewService(model.DefaultCoreSettings(), nil, nil)

	if err := svc.SetListenInterface(""); err != nil {
		t.Fatalf("SetListenInterface: %v", err)
	}
	if got := svc.Get().ListenInterface; got != "0.0.0.0:6881" {
		t.Fatalf("ListenInterface = %q, want 0.0.0.0:6881", got)
	}

	if err := svc.SetListenInterface("[::1]:7000"); err != nil {
		t.Fatalf("SetListenInterface: %v", err)
	}
	if got := svc.Get().ListenInterface; got != "[::1]:7000" {
		t.Fatalf("ListenInterface = %q, want [::1]:7000", got)
	}
}

func TestSetListenInterfaceRejectsBadPort(t *testing.T) {
	svc := NewService(model.DefaultCoreSettings(), nil, nil)
	if err := svc.SetListenInterface("host:notaport"); err == nil {
		t.Fatalf("expected an error for a non-numeric port")
	}
}

func TestUpdateAppliesDelta(t *testing.T) {
	svc := NewService(model.DefaultCoreSettings(), nil, nil)
	enabled := true
	_, err := svc.Update(model.SettingsDelta{PEXEnabled: &enabled})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !svc.Get().PEXEnabled {
		t.Fatalf("expected PEXEnabled to be true after update")
	}
}

func TestSetDownloadPathCreatesDirectory(t *testing.T) {
	svc := NewService(model.DefaultCoreSettings(), nil, nil)
	dir := filepath.Join(t.TempDir(), "nested", "downloads")

	if err := svc.SetDownloadPath(dir); err != nil {
		t.Fatalf("SetDownloadPath: %v", err)
	}
	if svc.Get().DownloadPath != dir {
		t.Fatalf("DownloadPath = %q, want %q", svc.Get().DownloadPath, dir)
	}
}

func TestUpdateRejectsInvalidSettings(t *testing.T) {
	svc := NewService(model.DefaultCoreSettings(), nil, nil)
	bad := -1
	if _, err := svc.Update(model.SettingsDelta{AltSpeedDownload: &bad}); err == nil {
		t.Fatalf("expected validation error for negative alt-speed limit")
	}
	if svc.Get().AltSpeedDownload != 0 {
		t.Fatalf("settings should not mutate on a rejected update")
	}
}
