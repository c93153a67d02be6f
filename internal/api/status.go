package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vico-research-and-consulting/k8s-zabbix/internal/k8sobjects"
	"github.com/vico-research-and-consulting/k8s-zabbix/internal/store"
)

// StatusServer exposes the daemon's local observability surface:
// liveness, readiness (every active discoverable kind discovered once;
// the derived containers kind is not checked), record counts and
// prometheus metrics.
type StatusServer struct {
	state     *store.State
	resources []k8sobjects.Kind
	engine    *gin.Engine
	server    *http.Server
}

func NewStatusServer(state *store.State, resources []k8sobjects.Kind, port int) *StatusServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	s := &StatusServer{
		state:     state,
		resources: resources,
		engine:    engine,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

func (s *StatusServer) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine.GET("/readyz", func(c *gin.Context) {
		for _, resource := range s.resources {
			if !resource.Capability().Discoverable {
				continue
			}
			if _, ok := s.state.DiscoverySent(resource); !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "waiting for discovery",
					"resource": string(resource),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	s.engine.GET("/api/v1/status", func(c *gin.Context) {
		resources := make([]gin.H, 0, len(s.resources))
		for _, resource := range s.resources {
			entry := gin.H{
				"resource": string(resource),
				"objects":  s.state.Count(resource),
			}
			if discoveredAt, ok := s.state.DiscoverySent(resource); ok {
				entry["last_discovery_sent"] = discoveredAt.UTC().Format(time.RFC3339)
			}
			if refreshedAt, ok := s.state.DataRefreshed(resource); ok {
				entry["last_data_refresh"] = refreshedAt.UTC().Format(time.RFC3339)
			}
			resources = append(resources, entry)
		}
		c.JSON(http.StatusOK, gin.H{"resources": resources})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start serves until Shutdown; it returns on listener failure only.
func (s *StatusServer) Start() {
	logrus.Infof("status server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.Errorf("status server: %v", err)
	}
}

// Handler exposes the gin engine for tests.
func (s *StatusServer) Handler() http.Handler {
	return s.engine
}

func (s *StatusServer) Shutdown() {
	_ = s.server.Close()
}
