package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/pgsim/devicectl/pkg/api"
	"github.com/pgsim/devicectl/pkg/config"
	"github.com/pgsim/devicectl/pkg/events"
	"github.com/pgsim/devicectl/pkg/kernel"
	"github.com/pgsim/devicectl/pkg/session"
	"github.com/pgsim/devicectl/pkg/store"
	"github.com/pgsim/devicectl/pkg/syncer"
)

type App struct {
	wg     *sync.WaitGroup
	config *config.Config

	store   *store.Store
	kernel  kernel.Commander
	broker  *events.Broker
	session *session.Manager
	api     *api.Server
	httpSrv *http.Server

	mu         sync.Mutex
	listenAddr string
}

func New(config *config.Config) *App {
	return &App{
		wg:     &sync.WaitGroup{},
		config: config,
		store:  store.New(),
	}
}

func (a *App) Start(ctx context.Context) error {
	if a.config.SessionEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     a.config.RedisAddr,
			Password: a.config.RedisPassword,
		})
		a.session = session.NewManager(session.NewRedisKV(client), a.config.SessionName, a.config.SessionTTL())
		snap, err := a.session.Load(ctx)
		if err != nil {
			logrus.Warnf("session restore failed: %s", err)
		} else if snap != nil {
			a.store.Restore(*snap)
			logrus.WithFields(logrus.Fields{
				"session": a.config.SessionName,
				"configs": len(snap.Configs),
			}).Info("restored session")
		}
	}

	broker, err := events.Start(a.config.MQTTAddr)
	if err != nil {
		return err
	}
	a.broker = broker

	switch {
	case a.config.KernelURL != "":
		a.kernel = kernel.NewHTTP(a.config.KernelURL, a.config.KernelCallTimeout())
	case a.config.KernelCmd != "":
		k, err := kernel.NewProcess(a.config.KernelCmd, a.config.KernelCallTimeout())
		if err != nil {
			return err
		}
		a.kernel = k
	default:
		logrus.Info("no kernel configured, running offline")
	}
	if a.kernel != nil {
		a.pingKernel(ctx)
	}

	a.api = api.New(a.store, syncer.New(a.kernel), a.kernel, a.broker, a.session)
	if a.kernel != nil {
		if err := a.api.RefreshRoster(ctx); err != nil {
			logrus.Warnf("device roster not loaded: %s", err)
		}
	}

	ln, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.listenAddr = ln.Addr().String()
	a.mu.Unlock()
	a.httpSrv = &http.Server{Handler: a.api.Router()}
	logrus.Infof("listening on %s", ln.Addr())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logrus.Error(err)
		}
	}()

	a.wg.Add(1)
	go a.shutdownLoop(ctx)
	return nil
}

// Addr is the bound listen address, usable once Start returned.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listenAddr
}

func (a *App) Wait() {
	a.wg.Wait()
}

// pingKernel probes the kernel a few times at startup. Failure is not
// fatal, the kernel may come up after us.
func (a *App) pingKernel(ctx context.Context) {
	for i := 1; i <= 3; i++ {
		err := a.kernel.Ping(ctx)
		if err == nil {
			logrus.Info("kernel is up")
			return
		}
		logrus.Warnf("kernel ping %d/3 failed: %s", i, err)
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) shutdownLoop(ctx context.Context) {
	defer a.wg.Done()
	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.session != nil {
		if err := a.session.Save(shutdownCtx, a.store.Snapshot()); err != nil {
			logrus.Errorf("final session save failed: %s", err)
		}
	}
	if err := a.broker.Close(); err != nil {
		logrus.Error(err)
	}
	if a.kernel != nil {
		if err := a.kernel.Close(); err != nil {
			logrus.Error(err)
		}
	}
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		logrus.Error(err)
	}
}
