package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mosaicnetworks/ledgersync/src/catchup"
	"github.com/mosaicnetworks/ledgersync/src/ledger"
	"github.com/mosaicnetworks/ledgersync/src/node"
	"github.com/mosaicnetworks/ledgersync/src/peers"
	"github.com/sirupsen/logrus"
)

// Node is what the service reads from a node. *node.Node implements it.
type Node interface {
	GetStats() (map[string]string, error)
	GetLedgers() ([]node.LedgerInfo, error)
	GetLedger(id ledger.ID) (node.LedgerInfo, error)
	GetPeers() []*peers.Peer
}

var _ Node = (*node.Node)(nil)

// Service exposes the state of a node over HTTP.
type Service struct {
	bindAddress string
	node        Node
	router      *mux.Router
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/ledgers", s.makeHandler(s.GetLedgers)).Methods("GET")
	s.router.HandleFunc("/ledgers/{id}", s.makeHandler(s.GetLedger)).Methods("GET")
	s.router.HandleFunc("/peers", s.makeHandler(s.GetPeers)).Methods("GET")
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router of the service, to be mounted on another server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.router)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.node.GetStats()
	if err != nil {
		s.fail(w, err, "Retrieving stats")
		return
	}

	writeJSON(w, stats)
}

// GetLedgers ...
func (s *Service) GetLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers, err := s.node.GetLedgers()
	if err != nil {
		s.fail(w, err, "Retrieving ledgers")
		return
	}

	writeJSON(w, ledgers)
}

// GetLedger accepts the numeric id or the name of a ledger.
func (s *Service) GetLedger(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["id"]

	id, err := ledger.ParseID(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing ledger id %s", param)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	info, err := s.node.GetLedger(id)
	if err != nil {
		s.fail(w, err, "Retrieving ledger")
		return
	}

	writeJSON(w, info)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

func (s *Service) fail(w http.ResponseWriter, err error, msg string) {
	s.logger.WithError(err).Error(msg)

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, catchup.ErrUnknownLedger):
		code = http.StatusNotFound
	case errors.Is(err, node.ErrShutdown):
		code = http.StatusServiceUnavailable
	}

	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
