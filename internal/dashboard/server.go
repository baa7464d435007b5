package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ssesports/scrims-bot/internal/config"
	"github.com/ssesports/scrims-bot/internal/registry"
	"github.com/ssesports/scrims-bot/internal/storage"
)

// Lifecycle is the slice of the engine the dashboard drives.
type Lifecycle interface {
	Confirm(ctx context.Context, id int64, actor, source string) error
	Reject(ctx context.Context, id int64, actor string) error
	Cancel(ctx context.Context, id int64, actor string) error
}

// Registry is the read surface over live registrations.
type Registry interface {
	All() []*registry.Registration
	FindByTeam(team string) (*registry.Registration, bool)
	ReservedCount(lobbyKey string) int
	ConfirmedCount(lobbyKey string) int
}

// Blacklist exposes the persisted blacklist for display.
type Blacklist interface {
	Entries() []storage.BlacklistEntry
}

// LobbyController opens and closes lobbies out of schedule.
type LobbyController interface {
	OpenLobby(ctx context.Context, key string) error
	CloseLobby(ctx context.Context, key string) error
}

// Server is the staff HTTP API: live state reads, CSV export and the manual
// actions that mirror the staff commands. All routes sit behind a bearer
// token; with no token configured the server refuses to start.
type Server struct {
	echo      *echo.Echo
	engine    Lifecycle
	regs      Registry
	blacklist Blacklist
	lobbyCtl  LobbyController
	lobbies   []config.Lobby
	capacity  int
	log       zerolog.Logger
}

func New(engine Lifecycle, regs Registry, blacklist Blacklist, lobbyCtl LobbyController, lobbies []config.Lobby, capacity int, token string, log zerolog.Logger) (*Server, error) {
	if token == "" {
		return nil, errors.New("dashboard: no token configured")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		engine:    engine,
		regs:      regs,
		blacklist: blacklist,
		lobbyCtl:  lobbyCtl,
		lobbies:   lobbies,
		capacity:  capacity,
		log:       log.With().Str("component", "dashboard").Logger(),
	}

	e.Use(middleware.Recover())

	api := e.Group("/api", middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return key == token, nil
	}))

	api.GET("/registrations", s.listRegistrations)
	api.GET("/lobbies", s.listLobbies)
	api.GET("/blacklist", s.listBlacklist)
	api.GET("/export.csv", s.exportCSV)

	api.POST("/markpaid", s.markPaid)
	api.POST("/reject", s.reject)
	api.POST("/cancel", s.cancel)
	api.POST("/open_lobby", s.openLobby)
	api.POST("/close_lobby", s.closeLobby)

	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is done, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.log.Info().Str("addr", addr).Msg("dashboard listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

type teamAction struct {
	Team string `json:"team"`
}

type lobbyAction struct {
	Key string `json:"key"`
}

type actionError struct {
	Error string `json:"error"`
}

func (s *Server) bindTeam(c echo.Context) (*registry.Registration, bool) {
	var req teamAction
	if err := c.Bind(&req); err != nil || req.Team == "" {
		_ = c.JSON(http.StatusBadRequest, actionError{Error: "team is required"})
		return nil, false
	}
	reg, ok := s.regs.FindByTeam(req.Team)
	if !ok {
		_ = c.JSON(http.StatusNotFound, actionError{Error: "no live registration for team"})
		return nil, false
	}
	return reg, true
}

func (s *Server) markPaid(c echo.Context) error {
	reg, ok := s.bindTeam(c)
	if !ok {
		return nil
	}
	err := s.engine.Confirm(c.Request().Context(), reg.ID, "dashboard", "dashboard")
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, reg)
	case errors.Is(err, registry.ErrAlreadyConfirmed):
		return c.JSON(http.StatusConflict, actionError{Error: "already confirmed"})
	default:
		return c.JSON(http.StatusConflict, actionError{Error: "not awaiting payment"})
	}
}

func (s *Server) reject(c echo.Context) error {
	reg, ok := s.bindTeam(c)
	if !ok {
		return nil
	}
	if err := s.engine.Reject(c.Request().Context(), reg.ID, "dashboard"); err != nil {
		return c.JSON(http.StatusConflict, actionError{Error: "not awaiting payment"})
	}
	return c.JSON(http.StatusOK, reg)
}

func (s *Server) cancel(c echo.Context) error {
	reg, ok := s.bindTeam(c)
	if !ok {
		return nil
	}
	if err := s.engine.Cancel(c.Request().Context(), reg.ID, "dashboard"); err != nil {
		return c.JSON(http.StatusConflict, actionError{Error: "registration already gone"})
	}
	return c.JSON(http.StatusOK, reg)
}

func (s *Server) openLobby(c echo.Context) error {
	return s.lobbyToggle(c, s.lobbyCtl.OpenLobby)
}

func (s *Server) closeLobby(c echo.Context) error {
	return s.lobbyToggle(c, s.lobbyCtl.CloseLobby)
}

func (s *Server) lobbyToggle(c echo.Context, fn func(context.Context, string) error) error {
	var req lobbyAction
	if err := c.Bind(&req); err != nil || req.Key == "" {
		return c.JSON(http.StatusBadRequest, actionError{Error: "key is required"})
	}
	if err := fn(c.Request().Context(), req.Key); err != nil {
		return c.JSON(http.StatusNotFound, actionError{Error: "unknown lobby"})
	}
	return c.JSON(http.StatusOK, map[string]string{"key": req.Key})
}
