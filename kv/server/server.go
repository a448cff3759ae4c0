package server

import (
	"net"
	"net/http"

	"github.com/pingcap-incubator/tinyocc/kv/config"
	"github.com/pingcap-incubator/tinyocc/kv/region"
	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/storage/standalone_storage"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/latches"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/occ"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/txnlog"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/pingcap/errors"
)

// Server hosts the transaction coordinator of one region. It owns the storage of the region and of the transaction
// log, reconstructs the region from the log on start, and serves status and metrics over HTTP.
type Server struct {
	conf       *config.Config
	engines    *engine_util.Engines
	kvStorage  storage.Storage
	logStorage storage.Storage

	Latches     *latches.Latches
	region      *region.Region
	txnLog      *txnlog.Log
	coordinator *occ.Coordinator

	statusServer   *http.Server
	statusListener net.Listener
}

func NewServer(conf *config.Config, kvStorage, logStorage storage.Storage) *Server {
	return &Server{
		conf:       conf,
		kvStorage:  kvStorage,
		logStorage: logStorage,
		Latches:    latches.NewLatches(),
	}
}

// OpenServer creates a server over the badger engines below conf.DBPath.
func OpenServer(conf *config.Config) *Server {
	engines := engine_util.OpenEngines(conf)
	s := NewServer(conf,
		standalone_storage.NewStandAloneStorage(engines.Kv),
		standalone_storage.NewStandAloneStorage(engines.TxnLog))
	s.engines = engines
	return s
}

// Start reconstructs the region and then starts serving transactions.
func (s *Server) Start() error {
	if err := s.kvStorage.Start(); err != nil {
		return err
	}
	if err := s.logStorage.Start(); err != nil {
		return err
	}
	var endKey []byte
	if len(s.conf.RegionEndKey) > 0 {
		endKey = []byte(s.conf.RegionEndKey)
	}
	s.region = region.New(s.conf.RegionID, []byte(s.conf.RegionStartKey), endKey, s.kvStorage, s.Latches)

	var err error
	if s.txnLog, err = txnlog.Open(s.logStorage); err != nil {
		return err
	}
	if err = s.Recover(); err != nil {
		return err
	}

	s.coordinator = occ.NewCoordinator(s.region, s.txnLog, s.conf)
	s.coordinator.Start()
	if len(s.conf.StatusAddr) > 0 {
		if err = s.startStatusServer(); err != nil {
			return err
		}
	}
	log.Infof("region %d [%q, %q) is serving transactions", s.region.ID, s.region.StartKey, s.region.EndKey)
	return nil
}

// Recover applies the updates of every transaction which committed in an earlier segment of the log, in log order,
// then purges those segments. Commit records carry the commit timestamp, so updates which already reached the
// region are overwritten with identical cells.
func (s *Server) Recover() error {
	segments, err := s.txnLog.Segments()
	if err != nil {
		return err
	}
	for _, segment := range segments {
		committed, err := s.txnLog.ReplayCommits(segment)
		if err != nil {
			return errors.Annotatef(err, "replay txn log segment %d", segment)
		}
		for _, txn := range committed {
			if err := s.region.Apply(txn.CommitTs, txn.Updates...); err != nil {
				return errors.Annotatef(err, "reapply txn %d", txn.ID)
			}
		}
		if err := s.txnLog.Purge(segment); err != nil {
			return err
		}
		log.Infof("recovered %d committed transactions from txn log segment %d", len(committed), segment)
	}
	return nil
}

func (s *Server) Coordinator() *occ.Coordinator {
	return s.coordinator
}

func (s *Server) Region() *region.Region {
	return s.region
}

// StatusAddr returns the address the status server listens on, or "" if it is not running.
func (s *Server) StatusAddr() string {
	if s.statusListener == nil {
		return ""
	}
	return s.statusListener.Addr().String()
}

func (s *Server) startStatusServer() error {
	l, err := net.Listen("tcp", s.conf.StatusAddr)
	if err != nil {
		return errors.Annotatef(err, "listen on %s", s.conf.StatusAddr)
	}
	s.statusListener = l
	s.statusServer = &http.Server{Handler: newStatusRouter(s)}
	go func() {
		log.Infof("status server listening on %v", l.Addr())
		if err := s.statusServer.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorf("status server stopped, %v", err)
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	if s.statusServer != nil {
		if err := s.statusServer.Close(); err != nil {
			log.Warnf("close status server, %v", err)
		}
	}
	if s.coordinator != nil {
		s.coordinator.Close()
	}
	if err := s.kvStorage.Stop(); err != nil {
		return err
	}
	if err := s.logStorage.Stop(); err != nil {
		return err
	}
	if s.engines != nil {
		return s.engines.Close()
	}
	return nil
}
