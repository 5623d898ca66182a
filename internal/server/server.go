package server

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/wachira567/eventhub-backend/config"
	"github.com/wachira567/eventhub-backend/internal/handlers"
	"github.com/wachira567/eventhub-backend/internal/logging"
	"github.com/wachira567/eventhub-backend/internal/middleware"
	"github.com/wachira567/eventhub-backend/internal/models"
	"github.com/wachira567/eventhub-backend/internal/mpesa"
	"github.com/wachira567/eventhub-backend/internal/payments"
	"github.com/wachira567/eventhub-backend/internal/store"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	mpesaCfg, err := config.LoadMpesaConfig()
	if err != nil {
		return fmt.Errorf("failed to load mpesa config: %v", err)
	}

	paymentCfg, err := config.LoadPaymentConfig()
	if err != nil {
		return fmt.Errorf("failed to load payment config: %v", err)
	}

	log, err := logging.New(os.Getenv("GIN_MODE") == gin.ReleaseMode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer log.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %v", err)
	}

	gateway := mpesa.NewClient(mpesaCfg)
	txStore := store.NewTransactionStore(db)
	activator := payments.NewActivator(db, []byte(paymentCfg.QRSigningKey))
	coordinator := payments.NewCoordinator(txStore, gateway, activator, log, payments.CoordinatorConfig{
		PendingTimeout:  paymentCfg.PendingTimeout,
		InitiateRetries: paymentCfg.InitiateRetries,
		InitiateBackoff: paymentCfg.InitiateBackoff,
	})

	sweeper := payments.NewSweeper(coordinator, paymentCfg.SweepInterval, log)
	go sweeper.Run(context.Background())

	r := gin.Default()

	setupRoutes(r, db, coordinator, txStore)

	return r.Run(":" + cfg.Port)
}

func setupRoutes(r *gin.Engine, db *gorm.DB, coordinator *payments.Coordinator, txStore payments.TransactionStore) {
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.PaymentMiddleware(coordinator, txStore))

	public := r.Group("/v1")
	{
		public.POST("/register", handlers.Register)
		public.POST("/login", handlers.Login)

		public.GET("/categories", handlers.ListCategories)

		eventPublic := public.Group("/events")
		{
			eventPublic.GET("", handlers.ListEvents)
			eventPublic.GET("/:id", handlers.GetEvent)
			eventPublic.GET("/:id/ticket-types", handlers.ListTicketTypes)
			eventPublic.GET("/:id/reviews", handlers.ListEventReviews)
			eventPublic.GET("/:id/reviews/stats", handlers.GetEventReviewStats)
		}

		// The gateway posts confirmations here; it cannot authenticate.
		public.POST("/payments/callback", handlers.STKPushCallback)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.JWTAuthMiddleware())
	{
		protected.GET("/me", handlers.Me)
		protected.POST("/change-password", handlers.ChangePassword)

		eventProtected := protected.Group("/events")
		{
			eventProtected.POST("", middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin), handlers.CreateEvent)
			eventProtected.PUT("/:id", handlers.UpdateEvent)
			eventProtected.DELETE("/:id", handlers.DeleteEvent)
			eventProtected.POST("/:id/submit", handlers.SubmitEventForReview)
			eventProtected.GET("/my-events", handlers.GetMyEvents)

			eventProtected.POST("/:id/ticket-types", handlers.CreateTicketType)
			eventProtected.PUT("/:id/ticket-types/:ttId", handlers.UpdateTicketType)
			eventProtected.DELETE("/:id/ticket-types/:ttId", handlers.DeleteTicketType)

			eventProtected.POST("/:id/reviews", handlers.CreateEventReview)

			eventProtected.GET("/:id/analytics", handlers.GetEventAnalytics)
			eventProtected.GET("/:id/attendees/csv", handlers.ExportEventAttendeesCSV)
		}

		protected.POST("/purchases", handlers.CreatePurchase)

		paymentProtected := protected.Group("/payments")
		{
			paymentProtected.GET("/:id/status", handlers.GetPaymentStatus)
			paymentProtected.POST("/:id/query", handlers.QueryPayment)
			paymentProtected.GET("/transactions", middleware.RequireRole(models.RoleAdmin), handlers.ListTransactions)
		}

		ticketProtected := protected.Group("/tickets")
		{
			ticketProtected.GET("", handlers.GetMyTickets)
			ticketProtected.GET("/:id/qr", handlers.GetTicketQR)
			ticketProtected.POST("/validate", handlers.ValidateTicket)
		}

		reviewProtected := protected.Group("/reviews")
		{
			reviewProtected.PUT("/:id", handlers.UpdateReview)
			reviewProtected.DELETE("/:id", handlers.DeleteReview)
		}

		protected.GET("/analytics/organizer", middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin), handlers.GetOrganizerAnalytics)

		moderation := protected.Group("/moderation")
		moderation.Use(middleware.RequireRole(models.RoleAdmin))
		{
			moderation.GET("/pending", handlers.ListPendingEvents)
			moderation.POST("/events/:id/approve", handlers.ApproveEvent)
			moderation.POST("/events/:id/reject", handlers.RejectEvent)
		}
	}
}
