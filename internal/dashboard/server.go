// Package dashboard serves a read-only HTTP status API: store counts,
// watcher listings, and job outcomes.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/semaphore/internal/scheduler"
	"github.com/zulandar/semaphore/internal/store"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Store *store.Store
	Addr  string
	// Jobs returns the scheduler's current job statuses.
	Jobs func() []scheduler.Status
	// Dropped returns the notification dedup drop count.
	Dropped func() int64
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8035"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", handleHealthz())
	router.GET("/api/stats", handleStats(opts))
	router.GET("/api/watchers", handleWatchedTickets(opts.Store))
	router.GET("/api/watchers/:ticket", handleTicketWatchers(opts.Store))
	router.GET("/api/jobs", handleJobs(opts))
}

func handleHealthz() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStats(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := opts.Store.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		payload := gin.H{"store": stats}
		if opts.Dropped != nil {
			payload["notifications_dropped"] = opts.Dropped()
		}
		c.JSON(http.StatusOK, payload)
	}
}

func handleWatchedTickets(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := st.AllWatchedTickets()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tickets": ids})
	}
}

func handleTicketWatchers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket := c.Param("ticket")
		regs, err := st.WatchersForTicket(ticket)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		type watcher struct {
			SubscriberID   string `json:"subscriber_id"`
			SubscriberName string `json:"subscriber_name"`
		}
		out := make([]watcher, 0, len(regs))
		for _, r := range regs {
			out = append(out, watcher{SubscriberID: r.SubscriberID, SubscriberName: r.SubscriberName})
		}
		c.JSON(http.StatusOK, gin.H{"ticket": ticket, "watchers": out})
	}
}

func handleJobs(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Jobs == nil {
			c.JSON(http.StatusOK, gin.H{"jobs": []scheduler.Status{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": opts.Jobs()})
	}
}
