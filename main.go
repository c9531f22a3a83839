package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ocrio/models"
	"ocrio/pkg/ocr"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("could not read .env")
	}
	cfg := loadConfig()
	cfg.configureLogging()
	ocr.SetLogger(logrus.StandardLogger())

	opts, err := cfg.PipelineOptions()
	if err != nil {
		logrus.WithError(err).Fatal("invalid OCR configuration")
	}
	engine := ocr.NewTesseractEngine(cfg.Language, cfg.TessdataPrefix)
	pipeline, err := ocr.New(engine, ocr.ZXingScanner{}, opts)
	if err != nil {
		logrus.WithError(err).Fatal("could not build OCR pipeline")
	}

	srv := &server{
		pipeline:  pipeline,
		jwtSecret: []byte(cfg.JWTSecret),
		origins:   cfg.AllowedOrigins,
		tesseract: engine.Version(),
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	r := newRouter(srv)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      opts.RequestTimeout + 15*time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":       cfg.Port,
			"selection":  opts.Selection,
			"strategies": len(opts.Configs),
			"workers":    opts.Workers,
			"auth":       len(srv.jwtSecret) > 0,
			"tesseract":  srv.tesseract,
		}).Info("ocr service listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout+5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("forced shutdown")
	}
}

// newRouter builds the engine with panic recovery that keeps the /api/ocr
// response shape.
func newRouter(srv *server) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logrus.WithField("panic", recovered).Error("handler panicked")
		c.AbortWithStatusJSON(http.StatusOK, models.OCRResponse{Text: ocr.ErrorText(errors.New("internal error"))})
	}))
	setupRoutes(r, srv)
	return r
}
