package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	orchestration "github.com/koscakluka/ema-companion/core"
)

// controller is what the control API and the terminal UI drive.
type controller interface {
	SendText(ctx context.Context, text string, images ...string) error
	SendExternal(ctx context.Context, source, text string) error
	Interrupt()
	Status() status
}

type status struct {
	OutputActive             bool   `json:"output_active"`
	UserInputActive          bool   `json:"user_input_active"`
	ExternalProcessingActive bool   `json:"external_processing_active"`
	Interrupted              bool   `json:"interrupted"`
	Busy                     bool   `json:"busy"`
	Voice                    string `json:"voice"`
	BargeIn                  bool   `json:"barge_in"`
	HistoryLength            int    `json:"history_length"`
}

type messageRequest struct {
	Text   string `json:"text" binding:"required"`
	Source string `json:"source"`
	// Images are http(s) or data: URLs sent along with Text. External
	// messages ignore them.
	Images []string `json:"images"`
	// Wait blocks the request until the turn ends.
	Wait bool `json:"wait"`
}

func newAPIRouter(ctx context.Context, c controller, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/v1")
	v1.POST("/messages", messagesHandler(ctx, c))
	v1.POST("/interrupt", func(g *gin.Context) {
		c.Interrupt()
		g.JSON(http.StatusOK, gin.H{"interrupted": true})
	})
	v1.GET("/state", func(g *gin.Context) {
		g.JSON(http.StatusOK, c.Status())
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}

// messagesHandler runs turns on ctx rather than the request context so a
// dropped client does not cancel the conversation.
func messagesHandler(ctx context.Context, c controller) gin.HandlerFunc {
	return func(g *gin.Context) {
		var req messageRequest
		if err := g.ShouldBindJSON(&req); err != nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		send := func() error {
			if req.Source != "" {
				return c.SendExternal(ctx, req.Source, req.Text)
			}
			return c.SendText(ctx, req.Text, req.Images...)
		}

		if !req.Wait {
			go func() {
				if err := send(); err != nil {
					logger.Warn("message turn failed", "error", err)
				}
			}()
			g.JSON(http.StatusAccepted, gin.H{"accepted": true})
			return
		}

		if err := send(); err != nil {
			var upstream *orchestration.UpstreamError
			if errors.As(err, &upstream) {
				g.JSON(http.StatusBadGateway, gin.H{"error": upstream.Notice()})
				return
			}
			g.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		g.JSON(http.StatusOK, gin.H{"status": c.Status()})
	}
}

// serveAPI runs the control API until ctx is done.
func serveAPI(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
