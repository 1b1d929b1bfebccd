package http

import (
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	appsvc "gopherai-pdfqa/internal/app"
	"gopherai-pdfqa/internal/bootstrap"
	"gopherai-pdfqa/internal/cache"
	"gopherai-pdfqa/internal/pkg/pdfextract"
	"gopherai-pdfqa/internal/pkg/textsplit"
	"gopherai-pdfqa/internal/repository"
	"gopherai-pdfqa/internal/transport/http/handler"
	"gopherai-pdfqa/internal/transport/http/middleware"
	"gopherai-pdfqa/internal/transport/http/response"
	"gopherai-pdfqa/web"
)

const signinPath = "/signin/"

// Handlers collects everything NewEngine mounts. It lets tests build an engine
// around fake services.
type Handlers struct {
	Auth          *handler.AuthHandler
	RAG           *handler.RAGHandler
	History       *handler.HistoryHandler
	Health        *handler.HealthHandler
	Authenticator middleware.Authenticator
	CookieName    string
	Limiter       *middleware.IPRateLimiter
	CORSOrigins   []string
	Location      *time.Location
	GinMode       string
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	loc := cfg.Location()

	userRepo := repository.NewUserRepository(app.DB)
	historyRepo := repository.NewQuestionAnswerRepository(app.DB)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	var recorder appsvc.HistoryRecorder = appsvc.NewSyncRecorder(historyRepo)
	if app.Publisher != nil {
		recorder = app.Publisher
	}

	authService := appsvc.NewAuthService(
		userRepo,
		cache.NewTokenBlocklist(app.Redis),
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	ragService := appsvc.NewRAGService(
		pdfextract.New(),
		textsplit.Default(),
		app.Store,
		app.Backends,
		recorder,
		historyCache,
		appsvc.RAGOptions{TopK: cfg.VectorStore.TopK},
	)
	historyService := appsvc.NewHistoryService(historyRepo, historyCache, loc)

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.PerSecond > 0 {
		limiter = middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst)
	}

	return NewEngine(Handlers{
		Auth: handler.NewAuthHandler(authService, handler.CookieConfig{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Auth.CookieSecure,
		}),
		RAG:           handler.NewRAGHandler(ragService, int64(cfg.App.MaxUploadMB)<<20),
		History:       handler.NewHistoryHandler(historyService),
		Health:        handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, healthChecks(app)),
		Authenticator: authService,
		CookieName:    cfg.Auth.CookieName,
		Limiter:       limiter,
		CORSOrigins:   cfg.App.CORSOrigins,
		Location:      loc,
		GinMode:       cfg.App.GinMode,
	})
}

func NewEngine(h Handlers) *gin.Engine {
	if h.GinMode != "" {
		gin.SetMode(h.GinMode)
	}
	if h.Location == nil {
		h.Location = time.Local
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoMethod(methodNotAllowed)
	router.Use(middleware.RequestLog(), gin.Recovery())
	if len(h.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = h.CORSOrigins
		corsCfg.AllowCredentials = true
		router.Use(cors.New(corsCfg))
	}
	router.Use(middleware.Identify(h.Authenticator, h.CookieName))

	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"datetime": func(t time.Time) string {
			return t.In(h.Location).Format("Jan 2, 2006 15:04")
		},
	}).ParseFS(web.FS, "templates/*.html"))
	router.SetHTMLTemplate(tmpl)
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		panic(err)
	}
	router.StaticFS("/static", http.FS(static))

	router.GET("/healthz", h.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", middleware.RequireLogin(signinPath), h.History.Index)
	router.GET("/signup/", h.Auth.SignupPage)
	router.POST("/signup/", h.Auth.Signup)
	router.GET("/signin/", h.Auth.SigninPage)
	router.POST("/signin/", h.Auth.Signin)
	router.GET("/signout/", h.Auth.Signout)

	ask := []gin.HandlerFunc{middleware.RequireAPIAuth()}
	if h.Limiter != nil {
		ask = append(ask, middleware.RateLimit(h.Limiter))
	}
	ask = append(ask, h.RAG.Ask)
	router.POST("/get-value/", ask...)
	router.POST("/upload-pdf/", middleware.RequireAPIAuth(), h.RAG.UploadPDF)

	return router
}

func healthChecks(app *bootstrap.App) map[string]handler.Check {
	checks := make(map[string]handler.Check)
	for name, fn := range app.HealthChecks() {
		checks[name] = fn
	}
	return checks
}

// methodNotAllowed keeps the per-endpoint 405 bodies: plain text for uploads,
// JSON for the question API.
func methodNotAllowed(c *gin.Context) {
	switch {
	case strings.HasPrefix(c.Request.URL.Path, "/upload-pdf"):
		c.String(http.StatusMethodNotAllowed, "Invalid request method")
	case strings.HasPrefix(c.Request.URL.Path, "/get-value"):
		response.Error(c, http.StatusMethodNotAllowed, "Invalid request method, only POST allowed")
	default:
		response.Error(c, http.StatusMethodNotAllowed, response.MsgMethodNotAllow)
	}
}
