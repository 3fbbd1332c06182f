package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"keyward/internal/api/handlers"
	"keyward/internal/api/middleware"
	"keyward/internal/config"
	"keyward/internal/service"
	"keyward/internal/store"
	"keyward/internal/version"
)

type Server struct {
	Router *gin.Engine
	DB     *pgxpool.Pool
	Config config.Config

	ProductStore      store.ProductStore
	LicenseStore      store.LicenseStore
	RegistrationStore store.RegistrationStore
	CustomerStore     store.CustomerStore
	LogStore          store.LogStore
	StatsStore        store.StatsStore
	SyncStore         store.SyncStore
}

func NewServer(cfg config.Config, db *pgxpool.Pool, ps store.ProductStore, ls store.LicenseStore, rs store.RegistrationStore, cs store.CustomerStore, logs store.LogStore, ss store.StatsStore, syncs store.SyncStore) *Server {
	r := gin.Default()

	r.Use(middleware.ResponseSigning(cfg.ResponseSigningPrivateKey))
	if len(cfg.TrustedProxies) > 0 {
		r.SetTrustedProxies(cfg.TrustedProxies)
	}

	server := &Server{
		Router:            r,
		DB:                db,
		Config:            cfg,
		ProductStore:      ps,
		LicenseStore:      ls,
		RegistrationStore: rs,
		CustomerStore:     cs,
		LogStore:          logs,
		StatsStore:        ss,
		SyncStore:         syncs,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Initialize Rate Limiters
	adminRateLimiter := middleware.RateLimitMiddleware(s.Config.RateLimitAdmin)
	deviceRateLimiter := middleware.RateLimitMiddleware(s.Config.RateLimitDevice)

	validator := &service.Validator{
		Products:      s.ProductStore,
		Licenses:      s.LicenseStore,
		Registrations: s.RegistrationStore,
		Logs:          s.LogStore,
	}
	syncer := &service.Syncer{
		Products:      s.ProductStore,
		Licenses:      s.LicenseStore,
		Registrations: s.RegistrationStore,
		Files:         s.SyncStore,
	}

	// Public routes
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": version.Version})
	})

	// Device-facing endpoints. The bare paths are aliases kept for clients
	// shipped before the API was versioned.
	validate := handlers.ValidateHandler(validator)
	s.Router.POST("/api/v1/validate", deviceRateLimiter, validate)
	s.Router.POST("/api/validate", deviceRateLimiter, validate)
	s.Router.POST("/validate", deviceRateLimiter, validate)

	sync := handlers.SyncHandler(syncer)
	s.Router.POST("/api/v1/sync", deviceRateLimiter, sync)
	s.Router.POST("/api/sync", deviceRateLimiter, sync)
	s.Router.POST("/sync", deviceRateLimiter, sync)

	// Protected routes
	authorized := s.Router.Group("/")
	authorized.Use(adminRateLimiter)
	authorized.Use(middleware.JWTAuth(s.Config))
	{
		// Dashboard Stats
		authorized.GET("/admin/stats", handlers.DashboardStatsHandler(s.StatsStore))

		// Product Management
		authorized.GET("/admin/products", handlers.ListProductsHandler(s.ProductStore))
		authorized.POST("/admin/products", handlers.CreateProductHandler(s.ProductStore, s.LogStore))
		authorized.GET("/admin/products/:id", handlers.GetProductHandler(s.ProductStore))
		authorized.PUT("/admin/products/:id", handlers.UpdateProductHandler(s.ProductStore, s.LogStore))
		authorized.DELETE("/admin/products/:id", handlers.DeleteProductHandler(s.ProductStore, s.LogStore))
		authorized.GET("/admin/products/:id/public-key", handlers.GetProductPublicKeyHandler(s.ProductStore))

		// License Management
		authorized.GET("/admin/products/:id/licenses", handlers.ListLicensesHandler(s.LicenseStore))
		authorized.POST("/admin/products/:id/licenses", handlers.CreateLicensesHandler(s.LicenseStore, s.ProductStore, s.CustomerStore, s.LogStore))
		authorized.POST("/admin/products/:id/licenses/purge-expired", handlers.DeleteExpiredLicensesHandler(s.LicenseStore, s.ProductStore, s.LogStore))
		authorized.GET("/admin/licenses/:id", handlers.GetLicenseHandler(s.LicenseStore, s.RegistrationStore))
		authorized.POST("/admin/licenses/:id/state", handlers.ChangeLicenseStateHandler(s.LicenseStore, s.LogStore))
		authorized.POST("/admin/licenses/bulk", handlers.BulkLicenseActionHandler(s.LicenseStore, s.LogStore))
		authorized.DELETE("/admin/licenses/:id/devices/:hardwareid", handlers.UnlinkDeviceHandler(s.RegistrationStore, s.LicenseStore, s.LogStore))

		// Customer Management
		authorized.GET("/admin/customers", handlers.ListCustomersHandler(s.CustomerStore))
		authorized.POST("/admin/customers", handlers.CreateCustomerHandler(s.CustomerStore))
		authorized.GET("/admin/customers/:id", handlers.GetCustomerHandler(s.CustomerStore))
		authorized.PUT("/admin/customers/:id", handlers.UpdateCustomerHandler(s.CustomerStore))
		authorized.DELETE("/admin/customers/:id", handlers.DeleteCustomerHandler(s.CustomerStore))

		// Sync File Browsing
		authorized.GET("/admin/sync", handlers.ListSyncEntriesHandler(s.SyncStore))
		authorized.GET("/admin/sync/:productid/:licenseid", handlers.ListSyncFilesHandler(s.SyncStore))
		authorized.GET("/admin/sync/:productid/:licenseid/:hardwareid/:filename", handlers.DownloadSyncFileHandler(s.SyncStore))
		authorized.DELETE("/admin/sync/:productid/:licenseid/:hardwareid/:filename", handlers.DeleteSyncFileHandler(s.SyncStore))

		// Log Management
		authorized.GET("/admin/logs/changelog", handlers.ListChangelogsHandler(s.LogStore))
		authorized.GET("/admin/logs/validation", handlers.ListValidationLogsHandler(s.LogStore))
	}
}
