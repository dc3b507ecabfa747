package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
)

// GroupService is what the group endpoints need; *classroom.Service implements it.
type GroupService interface {
	GenerateGroups(ctx context.Context, req classroom.GenerateRequest) (classroom.GenerateResult, error)
	QueryGroups(ctx context.Context, classID string) ([]classroom.Group, error)
	ClearGroups(ctx context.Context, classID string) (int, error)
}

type Server struct {
	conf   *core.Config
	app    *echo.Echo
	errors chan error
	signal chan os.Signal
}

func NewServer(
	conf *core.Config,
	logger core.Logger,
	groupSvc GroupService,
	validate *validator.Validate,
	translator ut.Translator,
) *Server {
	s := &Server{
		conf:   conf,
		app:    echo.New(),
		errors: make(chan error, 1),
		signal: make(chan os.Signal, 1),
	}
	signal.Notify(s.signal, os.Interrupt, syscall.SIGTERM)

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(logger, s.SignalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	registerGroupAPI(v1, groupSvc)
	registerReadingAPI(v1, validate, translator)

	return s
}

// Start serves until the server is shut down; any other failure is sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.signal
}

// SignalShutdown asks the process to shut down as if it received SIGTERM.
func (s *Server) SignalShutdown() {
	select {
	case s.signal <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
