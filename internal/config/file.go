// Package config loads the daemon's startup configuration and holds
// the live, mutable CoreSettings the Engine Thread serves to RPC.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/tinytorrent/tinytorrentd/internal/model"
)

// FileConfig is the on-disk/env-sourced configuration read once at
// startup, grounded on the teacher's seeder config loader. Its fields
// seed the initial model.CoreSettings; everything afterwards flows
// through Service.Update.
type FileConfig struct {
	Network  NetworkConfig  `mapstructure:"network"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	AltSpeed AltSpeedConfig `mapstructure:"alt_speed"`
	Log      LogConfig      `mapstructure:"log"`
}

type NetworkConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
	EnableDHT   bool   `mapstructure:"enable_dht"`
	EnablePEX   bool   `mapstructure:"enable_pex"`
	EnableUTP   bool   `mapstructure:"enable_utp"`
	Encryption  string `mapstructure:"encryption"`
}

type StorageConfig struct {
	DownloadDir   string `mapstructure:"download_dir"`
	IncompleteDir string `mapstructure:"incomplete_dir"`
	WatchDir      string `mapstructure:"watch_dir"`
	MetadataDir   string `mapstructure:"metadata_dir"`
	BlocklistPath string `mapstructure:"blocklist_path"`
}

type LimitsConfig struct {
	MaxUploadKBps   int `mapstructure:"max_upload_kbps"`
	MaxDownloadKBps int `mapstructure:"max_download_kbps"`
	PeerLimitGlobal int `mapstructure:"peer_limit_global"`
	PeerLimitPerTorrent int `mapstructure:"peer_limit_per_torrent"`
}

type AltSpeedConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	UploadKBps    int    `mapstructure:"upload_kbps"`
	DownloadKBps  int    `mapstructure:"download_kbps"`
	TimeEnabled   bool   `mapstructure:"time_enabled"`
	TimeBeginMin  int    `mapstructure:"time_begin_min"`
	TimeEndMin    int    `mapstructure:"time_end_min"`
	TimeDayMask   int    `mapstructure:"time_day_mask"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultFileConfig returns the configuration used when no file or
// env override is present.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Network: NetworkConfig{
			BindAddress: "0.0.0.0",
			Port:        6881,
			EnableDHT:   true,
			EnablePEX:   true,
			EnableUTP:   true,
			Encryption:  "preferred",
		},
		Storage: StorageConfig{
			DownloadDir:   "./downloads",
			IncompleteDir: "./downloads/.incomplete",
			WatchDir:      "./watch",
			MetadataDir:   "./metadata",
		},
		Limits: LimitsConfig{
			MaxUploadKBps:       0,
			MaxDownloadKBps:     0,
			PeerLimitGlobal:     200,
			PeerLimitPerTorrent: 50,
		},
		AltSpeed: AltSpeedConfig{
			UploadKBps:   50,
			DownloadKBps: 50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFileConfig reads configuration through Viper, which takes each
// key from the first source that sets it: bound command-line flags,
// the environment (TINYTORRENT_-prefixed), the config file, then the
// defaults set here.
func LoadFileConfig() (*FileConfig, error) {
	defaults := DefaultFileConfig()

	viper.SetDefault("network.bind_address", defaults.Network.BindAddress)
	viper.SetDefault("network.port", defaults.Network.Port)
	viper.SetDefault("network.enable_dht", defaults.Network.EnableDHT)
	viper.SetDefault("network.enable_pex", defaults.Network.EnablePEX)
	viper.SetDefault("network.enable_utp", defaults.Network.EnableUTP)
	viper.SetDefault("network.encryption", defaults.Network.Encryption)

	viper.SetDefault("storage.download_dir", defaults.Storage.DownloadDir)
	viper.SetDefault("storage.incomplete_dir", defaults.Storage.IncompleteDir)
	viper.SetDefault("storage.watch_dir", defaults.Storage.WatchDir)
	viper.SetDefault("storage.metadata_dir", defaults.Storage.MetadataDir)
	viper.SetDefault("storage.blocklist_path", defaults.Storage.BlocklistPath)

	viper.SetDefault("limits.max_upload_kbps", defaults.Limits.MaxUploadKBps)
	viper.SetDefault("limits.max_download_kbps", defaults.Limits.MaxDownloadKBps)
	viper.SetDefault("limits.peer_limit_global", defaults.Limits.PeerLimitGlobal)
	viper.SetDefault("limits.peer_limit_per_torrent", defaults.Limits.PeerLimitPerTorrent)

	viper.SetDefault("alt_speed.enabled", defaults.AltSpeed.Enabled)
	viper.SetDefault("alt_speed.upload_kbps", defaults.AltSpeed.UploadKBps)
	viper.SetDefault("alt_speed.download_kbps", defaults.AltSpeed.DownloadKBps)
	viper.SetDefault("alt_speed.time_enabled", defaults.AltSpeed.TimeEnabled)
	viper.SetDefault("alt_speed.time_begin_min", defaults.AltSpeed.TimeBeginMin)
	viper.SetDefault("alt_speed.time_end_min", defaults.AltSpeed.TimeEndMin)
	viper.SetDefault("alt_speed.time_day_mask", defaults.AltSpeed.TimeDayMask)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.format", defaults.Log.Format)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &FileConfig{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// ToCoreSettings translates the loaded file configuration into the
// initial model.CoreSettings the Engine Thread starts with.
func (c *FileConfig) ToCoreSettings() model.CoreSettings {
	s := model.DefaultCoreSettings()

	s.ListenInterface = fmt.Sprintf("%s:%d", c.Network.BindAddress, c.Network.Port)
	s.DHTEnabled = c.Network.EnableDHT
	s.PEXEnabled = c.Network.EnablePEX
	s.UTPEnabled = c.Network.EnableUTP
	switch c.Network.Encryption {
	case "required":
		s.Encryption = model.EncryptionRequired
	case "tolerated":
		s.Encryption = model.EncryptionTolerated
	default:
		s.Encryption = model.EncryptionPreferred
	}

	s.DownloadPath = c.Storage.DownloadDir
	s.IncompleteDir = c.Storage.IncompleteDir
	s.IncompleteEnabled = c.Storage.IncompleteDir != ""
	s.WatchDir = c.Storage.WatchDir
	s.WatchDirEnabled = c.Storage.WatchDir != ""
	s.MetadataDir = c.Storage.MetadataDir
	s.BlocklistPath = c.Storage.BlocklistPath

	s.DownloadLimit = model.RateLimit{Enabled: c.Limits.MaxDownloadKBps > 0, KBps: c.Limits.MaxDownloadKBps}
	s.UploadLimit = model.RateLimit{Enabled: c.Limits.MaxUploadKBps > 0, KBps: c.Limits.MaxUploadKBps}
	s.PeerLimit = c.Limits.PeerLimitGlobal
	s.PeerLimitPerTorrent = c.Limits.PeerLimitPerTorrent

	s.AltSpeedEnabled = c.AltSpeed.Enabled
	s.AltSpeedDownload = c.AltSpeed.DownloadKBps
	s.AltSpeedUpload = c.AltSpeed.UploadKBps
	s.AltSpeedTime = model.AltSpeedSchedule{
		TimeEnabled: c.AltSpeed.TimeEnabled,
		BeginMin:    c.AltSpeed.TimeBeginMin,
		EndMin:      c.AltSpeed.TimeEndMin,
		DayMask:     uint(c.AltSpeed.TimeDayMask),
	}

	return s
}
