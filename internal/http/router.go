package httpserver

import (
	"log"
	"net/http"

	"github.com/geopix/geopix-back/internal/http/handlers"
	"github.com/geopix/geopix-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Resolver       middleware.UserResolver
	Logger         *log.Logger
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.HandleFunc("/login", deps.API.Login)
	mux.HandleFunc("/logout", deps.API.Logout)
	mux.HandleFunc("/me", deps.API.Me)
	mux.HandleFunc("/image-upload", deps.API.Uploads)
	mux.HandleFunc("/image-upload/", deps.API.UploadByID)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.Resolver)(handler)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
