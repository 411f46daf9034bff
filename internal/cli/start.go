package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/config"
	"github.com/tinytorrent/tinytorrentd/internal/engine"
	"github.com/tinytorrent/tinytorrentd/internal/eventbus"
	"github.com/tinytorrent/tinytorrentd/internal/history"
	"github.com/tinytorrent/tinytorrentd/internal/ioworker"
	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/persistence"
	"github.com/tinytorrent/tinytorrentd/internal/queue"
	"github.com/tinytorrent/tinytorrentd/internal/session"
	"github.com/tinytorrent/tinytorrentd/internal/snapshot"
	"github.com/tinytorrent/tinytorrentd/internal/statesvc"
)

// ioWorkerConcurrency bounds how many blocking filesystem tasks
// (watch-dir scans, blocklist parses, disk-space probes) run at once.
const ioWorkerConcurrency = 4

// shutdownGracePeriod bounds how long start waits for the Engine
// Thread's resume-data save to finish before forcing an exit, on top
// of the engine's own internal deadline from spec §4.9.
const shutdownGracePeriod = 15 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tinytorrentd daemon",
	Long: `Start loads configuration, opens the persistence store, restores
any previously known torrents, and runs the Engine Thread until it
receives SIGINT/SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("data-dir", "", "download directory for torrent data")
	startCmd.Flags().Int("port", 0, "BitTorrent listen port")
	startCmd.Flags().String("bind", "", "bind address for the peer-wire listener")

	_ = viper.BindPFlag("storage.download_dir", startCmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("network.port", startCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("network.bind_address", startCmd.Flags().Lookup("bind"))
}

// reattachPersistedTorrent re-adds a torrent loaded from the
// persistence store using whichever of the three source fields
// PersistedTorrent.Validate requires to be the sole one set, per
// spec §3/§6. Falling back to AddTorrentInfoHash discards the
// metainfo/magnet the torrent was originally added with, so it is
// tried only for rows that somehow carry none of the three (legacy
// rows predating ResumeData/MetadataFilePath, in practice).
func reattachPersistedTorrent(backend session.Backend, t model.PersistedTorrent) error {
	switch {
	case t.MagnetURI != "":
		_, err := backend.AddTorrentMagnet(context.Background(), t.MagnetURI)
		return err
	case len(t.MetainfoBlob) > 0:
		_, err := backend.AddTorrentMetainfo(context.Background(), t.MetainfoBlob)
		return err
	case t.MetadataFilePath != "":
		blob, err := os.ReadFile(t.MetadataFilePath)
		if err != nil {
			return fmt.Errorf("read metainfo sidecar: %w", err)
		}
		_, err = backend.AddTorrentMetainfo(context.Background(), blob)
		return err
	default:
		return backend.AddTorrentInfoHash(context.Background(), t.InfoHash)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.LoadFileConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("starting tinytorrentd",
		zap.String("bind_address", fileCfg.Network.BindAddress),
		zap.Int("port", fileCfg.Network.Port))

	if err := os.MkdirAll(fileCfg.Storage.MetadataDir, 0o755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	dbPath := filepath.Join(fileCfg.Storage.MetadataDir, "tinytorrentd.db")
	store, err := persistence.Open(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open persistence store: %w", err)
	}
	defer store.Close()

	initial, err := store.LoadSettings(fileCfg.ToCoreSettings())
	if err != nil {
		return fmt.Errorf("load persisted settings: %w", err)
	}
	if err := initial.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	persistedTorrents, err := store.LoadTorrents()
	if err != nil {
		return fmt.Errorf("load persisted torrents: %w", err)
	}
	persistedStats, err := store.LoadSessionStatistics()
	if err != nil {
		return fmt.Errorf("load persisted statistics: %w", err)
	}
	persistedStats.SessionCount++

	ids := model.NewIDTable()
	byHash := make(map[model.InfoHash]model.PersistedTorrent, len(persistedTorrents))
	restore := make(map[model.InfoHash]int64, len(persistedTorrents))
	for _, t := range persistedTorrents {
		byHash[t.InfoHash] = t
		if t.RpcID > 0 {
			restore[t.InfoHash] = t.RpcID
		}
	}
	ids.Restore(restore)
	for hash, t := range byHash {
		if _, ok := restore[hash]; ok {
			continue
		}
		id, _ := ids.IDFor(hash)
		t.RpcID = id
		byHash[hash] = t
		store.UpdateRpcID(hash, id)
	}

	host, portStr, err := net.SplitHostPort(initial.ListenInterface)
	if err != nil {
		host, portStr = "0.0.0.0", "6881"
	}
	port, _ := strconv.Atoi(portStr)

	backend := session.NewLibtorrentBackend(session.BackendConfig{
		ListenHost:          host,
		ListenPort:          port,
		EnableIPv6:          true,
		DataDir:             initial.DownloadPath,
		EnableDHT:           initial.DHTEnabled,
		EnablePEX:           initial.PEXEnabled,
		EnableUTP:           initial.UTPEnabled,
		Encryption:          initial.Encryption,
		DownloadLimit:       initial.DownloadLimit,
		UploadLimit:         initial.UploadLimit,
		PeerLimitPerTorrent: initial.PeerLimitPerTorrent,
	}, logger)

	if err := backend.Start(context.Background()); err != nil {
		return fmt.Errorf("start backend session: %w", err)
	}

	cfgService := config.NewService(initial, backend, store)
	bus := eventbus.New()
	router := session.NewRouter(bus, initial.MetadataDir, logger)
	snap := snapshot.NewBuilder(ids)
	stats := statesvc.NewService(persistedStats)
	q := queue.New()
	hist := history.NewAgent(store, initial.History)
	defer hist.Close()
	io := ioworker.New(ioWorkerConcurrency, logger)

	eng := engine.New(engine.Deps{
		Log:       logger,
		IDs:       ids,
		Config:    cfgService,
		Backend:   backend,
		Router:    router,
		Bus:       bus,
		Snap:      snap,
		Stats:     stats,
		Queue:     q,
		History:   hist,
		IO:        io,
		Store:     store,
		Persisted: byHash,
	})

	for hash, t := range byHash {
		if err := reattachPersistedTorrent(backend, t); err != nil {
			logger.Warn("failed to re-attach persisted torrent",
				zap.String("hash", hash.String()), zap.Error(err))
			continue
		}
		if len(t.ResumeData) == 0 {
			continue
		}
		if err := backend.ApplyResumeData(hash, t.ResumeData); err != nil {
			logger.Warn("failed to apply resume data",
				zap.String("hash", hash.String()), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go eng.Run(ctx)

	logger.Info("tinytorrentd started", zap.String("listen", initial.ListenInterface))
	logger.Info("press ctrl+c to stop")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()

	if err := eng.RequestShutdown(shutdownCtx); err != nil {
		logger.Error("failed to request shutdown", zap.Error(err))
	}

	select {
	case <-eng.Done():
	case <-shutdownCtx.Done():
		logger.Warn("engine did not shut down within the grace period")
	}
	cancel()

	if err := backend.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping backend session", zap.Error(err))
	}

	logger.Info("tinytorrentd stopped")
	return nil
}
