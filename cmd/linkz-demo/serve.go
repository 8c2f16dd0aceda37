package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/zoobzio/linkz"
	"github.com/zoobzio/linkz/integrations/ginlinkz"
	"go.uber.org/zap"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo HTTP service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := linkz.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		reg := prometheus.NewRegistry()
		tracer, err := linkz.NewFromConfig(cfg, logger, reg)
		if err != nil {
			return err
		}
		defer tracer.Close()
		tracer.AddReporter(linkz.NewLogReporter(logger.Named("spans")))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, tracer, logger, reg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:8080", "Listen address.")
}

type demo struct {
	tracer *linkz.Tracer
	client *linkz.Client
	logger *zap.Logger
	self   string
}

func serve(ctx context.Context, cfg *linkz.Config, tracer *linkz.Tracer, logger *zap.Logger, reg *prometheus.Registry) error {
	gin.SetMode(gin.ReleaseMode)

	client := linkz.NewClient(tracer, &http.Client{Timeout: 5 * time.Second})
	client.MaxRedirects = cfg.MaxRedirects
	d := &demo{tracer: tracer, client: client, logger: logger, self: "http://" + listenAddr}

	router := gin.New()
	router.Use(gin.Recovery(), ginlinkz.Middleware(tracer))
	router.GET("/items/:id", d.item)
	router.GET("/hop/:n", d.hop)
	router.GET("/chain/:n", d.chain)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", listenAddr), zap.String("service", cfg.ServiceName))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// item looks up price and stock concurrently, each branch as a local span.
func (d *demo) item(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var price, stock string
	err := linkz.Parallel(ctx, linkz.Capture(ctx),
		func(ctx context.Context) error {
			_, span := d.tracer.StartSpan(ctx, "price.lookup")
			defer span.Finish()
			span.SetTag("item.id", id)
			price = "9.99"
			return nil
		},
		func(ctx context.Context) error {
			_, span := d.tracer.StartSpan(ctx, "stock.lookup")
			defer span.Finish()
			span.SetTag("item.id", id)
			stock = "12"
			return nil
		},
	)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	linkz.WithContextLogger(ctx, d.logger).Info("item served", zap.String("item", id))
	c.JSON(http.StatusOK, gin.H{"id": id, "price": price, "stock": stock})
}

// hop redirects to /hop/n-1 until n reaches zero.
func (d *demo) hop(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
		return
	}
	if n == 0 {
		c.String(http.StatusOK, "arrived")
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/hop/%d", n-1))
}

// chain calls this service's /hop/n through the traced client, so every hop
// shows up as a sibling client span under this request.
func (d *demo) chain(c *gin.Context) {
	ctx := c.Request.Context()
	resp, err := d.client.Get(ctx, d.self+"/hop/"+c.Param("n"))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": resp.StatusCode, "body": string(body)})
}
