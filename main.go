package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/ekyc-capture/internal/auth"
	"github.com/example/ekyc-capture/internal/camera"
	"github.com/example/ekyc-capture/internal/config"
	"github.com/example/ekyc-capture/internal/handlers"
	"github.com/example/ekyc-capture/internal/handoff"
	"github.com/example/ekyc-capture/internal/imagecodec"
	"github.com/example/ekyc-capture/internal/logging"
	"github.com/example/ekyc-capture/internal/presenter"
	"github.com/example/ekyc-capture/internal/verifyclient"
	"github.com/example/ekyc-capture/internal/webcam"
	"github.com/example/ekyc-capture/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cameras := camera.NewManager(initCameraDevice(cfg, logger), logger)
	defer cameras.Close()

	verifier, err := verifyclient.NewClient(cfg.VerifyBaseURL, verifyclient.NewHTTPClient(cfg.VerifyTimeout), logger)
	if err != nil {
		logger.Fatal("invalid verification endpoint", zap.Error(err))
	}

	store := initHandoffStore(ctx, cfg, logger)
	machine := workflow.NewMachine(cameras, imagecodec.New(), verifier, logger,
		workflow.WithHandoff(store),
		workflow.WithSubjectName(cfg.VerifySubjectName),
	)
	defer machine.Close()

	r := gin.Default()

	var middlewares []gin.HandlerFunc
	if cfg.JWTSecret != "" {
		middlewares = append(middlewares, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience, logger))
	} else {
		logger.Warn("JWT_SECRET not set, workflow routes are unauthenticated")
	}
	handlers.RegisterRoutes(r, machine, presenter.New(machine, logger), logger, middlewares...)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	logger.Info("capture service listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("verify_base_url", cfg.VerifyBaseURL),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initCameraDevice(cfg config.Config, logger *zap.Logger) camera.Device {
	if cfg.CameraMock {
		logger.Info("using mock camera", zap.Int("width", cfg.CameraWidth), zap.Int("height", cfg.CameraHeight))
		return camera.NewMockDevice(cfg.CameraWidth, cfg.CameraHeight)
	}
	return webcam.NewDevice(cfg.CameraDeviceID, cfg.CameraWidth, cfg.CameraHeight, logger)
}

func initHandoffStore(ctx context.Context, cfg config.Config, logger *zap.Logger) handoff.Store {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, keeping source images in memory")
		return handoff.WithRetry(handoff.NewMemoryStore(cfg.HandoffTTL), logger)
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(redisCtx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	return handoff.WithRetry(handoff.NewRedisStore(client, cfg.HandoffTTL), logger)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
