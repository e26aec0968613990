package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/devices"
	"github.com/pgsim/devicectl/pkg/events"
	"github.com/pgsim/devicectl/pkg/kernel"
	"github.com/pgsim/devicectl/pkg/session"
	"github.com/pgsim/devicectl/pkg/store"
	"github.com/pgsim/devicectl/pkg/syncer"
)

// Server is the HTTP surface of the daemon. The kernel commander and the
// session manager may be nil, the server then runs offline respectively
// without persistence.
type Server struct {
	store   *store.Store
	sync    *syncer.Syncer
	kernel  kernel.Commander
	broker  *events.Broker
	session *session.Manager

	mu    sync.RWMutex
	types map[string]string
}

func New(st *store.Store, sy *syncer.Syncer, k kernel.Commander, b *events.Broker, sm *session.Manager) *Server {
	return &Server{
		store:   st,
		sync:    sy,
		kernel:  k,
		broker:  b,
		session: sm,
		types:   map[string]string{},
	}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/devices", s.listDevices).Methods("GET")

	v1.HandleFunc("/configs", s.listConfigs).Methods("GET")
	v1.HandleFunc("/configs", s.clearConfigs).Methods("DELETE")
	v1.HandleFunc("/configs/{id}", s.getConfig).Methods("GET")
	v1.HandleFunc("/configs/{id}", s.putConfig).Methods("PUT")
	v1.HandleFunc("/configs/{id}", s.deleteConfig).Methods("DELETE")
	v1.HandleFunc("/configs/{id}/type", s.putType).Methods("PUT")
	v1.HandleFunc("/configs/{id}/manual", s.putManual).Methods("PUT")
	v1.HandleFunc("/configs/{id}/random", s.putRandom).Methods("PUT")
	v1.HandleFunc("/configs/{id}/historical", s.putHistorical).Methods("PUT")
	v1.HandleFunc("/configs/{id}/simparams", s.putSimParams).Methods("PUT")

	v1.HandleFunc("/selection", s.getSelection).Methods("GET")
	v1.HandleFunc("/selection", s.putSelection).Methods("PUT")
	v1.HandleFunc("/selection/type", s.batchType).Methods("POST")

	v1.HandleFunc("/historical/columns", s.historicalColumns).Methods("GET")
	v1.HandleFunc("/historical/preview", s.historicalPreview).Methods("POST")
	v1.HandleFunc("/historical/range", s.historicalRange).Methods("GET")
	v1.HandleFunc("/historical/sqlite-devices", s.sqliteDevices).Methods("GET")

	return handlers.RecoveryHandler()(handlers.LoggingHandler(logrus.StandardLogger().Writer(), r))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{"status": "ok"}
	if s.kernel == nil {
		out["kernel"] = "not configured"
		writeJSON(w, http.StatusOK, out)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.kernel.Ping(ctx); err != nil {
		out["kernel"] = "unreachable"
		out["kernelError"] = err.Error()
	} else {
		out["kernel"] = "ok"
	}
	writeJSON(w, http.StatusOK, out)
}

type deviceView struct {
	devices.Device
	Controllable bool     `json:"controllable"`
	RatedPowerKW *float64 `json:"ratedPowerKw,omitempty"`
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if s.kernel == nil {
		writeError(w, http.StatusServiceUnavailable, "kernel not configured")
		return
	}
	devs, err := s.kernel.Devices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.cacheRoster(devs)

	views := make([]deviceView, 0, len(devs))
	for _, d := range devs {
		v := deviceView{Device: d, Controllable: devices.Controllable(d.Type)}
		if kw, ok := devices.RatedPowerKW(d); ok {
			v.RatedPowerKW = &kw
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": views})
}

// RefreshRoster loads the kernel device roster into the type cache. Best
// effort at startup, the cache also refreshes on every roster request.
func (s *Server) RefreshRoster(ctx context.Context) error {
	if s.kernel == nil {
		return nil
	}
	devs, err := s.kernel.Devices(ctx)
	if err != nil {
		return err
	}
	s.cacheRoster(devs)
	return nil
}

func (s *Server) cacheRoster(devs []devices.Device) {
	s.mu.Lock()
	s.types = make(map[string]string, len(devs))
	for _, d := range devs {
		s.types[d.ID] = d.Type
	}
	s.mu.Unlock()
}

func (s *Server) deviceType(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[id]
}

// finishMutation runs the shared tail of every config mutation: emit the
// config event, persist the session in the background, push to the kernel
// and emit the sync outcome.
func (s *Server) finishMutation(ctx context.Context, id string, cfg datasource.Config) syncer.Result {
	s.broker.PublishConfig(id, cfg)
	s.saveSession()
	res := s.sync.SyncDevice(ctx, id, cfg, s.deviceType(id))
	s.broker.PublishSync(id, res)
	return res
}

// saveSession persists asynchronously, a slow or broken Redis never
// blocks an API response.
func (s *Server) saveSession() {
	if s.session == nil {
		return
	}
	snap := s.store.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.session.Save(ctx, snap); err != nil {
			logrus.Errorf("session save failed: %s", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("encode response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
