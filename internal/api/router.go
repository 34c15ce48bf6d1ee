package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parking_garage/internal/api/handler"
	"parking_garage/internal/api/middleware"
	"parking_garage/internal/domain"
	"parking_garage/internal/metrics"
	"parking_garage/internal/service"
)

type Deps struct {
	Auth          *service.AuthService
	Garages       *service.GarageService
	Reservations  *service.ReservationService
	Reassignment  *service.ReassignmentService
	Gate          *service.GateService
	IoT           *service.IoTService
	Plates        *service.LicencePlateService
	Billing       *service.BillingService
	Notifications *service.NotificationService
	WebSocket     *handler.WebSocketManager

	Metrics             *metrics.Metrics
	Gatherer            prometheus.Gatherer
	StripeWebhookSecret string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Metrics))
	r.Use(middleware.CORS())

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	authMw := middleware.NewAuthMiddleware(d.Auth)
	staff := authMw.AuthorizeRole(domain.RoleAdmin, domain.RoleOperator)
	admin := authMw.AuthorizeRole(domain.RoleAdmin)

	wsHandler := handler.NewWebSocketHandler(d.WebSocket, d.Auth)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(d.Auth)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	webhookH := handler.NewWebhookHandler(d.Gate, d.StripeWebhookSecret)
	r.POST("/webhooks/stripe", webhookH.Stripe)

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		garageH := handler.NewGarageHandler(d.Garages, d.Reservations, d.Reassignment)
		garageRoutes := v1.Group("/garages")
		{
			garageRoutes.GET("", garageH.ListGarages)
			garageRoutes.POST("", admin, garageH.CreateGarage)
			garageRoutes.GET("/:id", garageH.GetGarage)
			garageRoutes.PUT("/:id", admin, garageH.UpdateGarage)
			garageRoutes.DELETE("/:id", admin, garageH.DeleteGarage)
			garageRoutes.GET("/:id/status", garageH.GetStatus)

			garageRoutes.GET("/:id/lots", garageH.ListLots)
			garageRoutes.POST("/:id/lots", admin, garageH.CreateLot)
			garageRoutes.PUT("/:id/lots/:lot_id", admin, garageH.UpdateLot)

			garageRoutes.GET("/:id/prices", garageH.ListPrices)
			garageRoutes.POST("/:id/prices", admin, garageH.CreatePrice)
			garageRoutes.DELETE("/:id/prices/:price_id", admin, garageH.DeletePrice)

			garageRoutes.POST("/:id/assign-lot", garageH.AssignLot)
			garageRoutes.POST("/:id/reassign", admin, garageH.Reassign)
		}

		gateH := handler.NewGateHandler(d.Gate, d.IoT)
		gateRoutes := v1.Group("/gates/:garage_id")
		gateRoutes.Use(staff)
		{
			gateRoutes.POST("/detect", gateH.DetectPlate)
			gateRoutes.POST("/image", gateH.DetectImage)
			gateRoutes.POST("/barrier", gateH.ControlBarrier)
		}

		reservationH := handler.NewReservationHandler(d.Reservations)
		reservationRoutes := v1.Group("/reservations")
		{
			reservationRoutes.GET("", reservationH.List)
			reservationRoutes.POST("", reservationH.Create)
			reservationRoutes.DELETE("/:id", reservationH.Cancel)
		}

		plateH := handler.NewLicencePlateHandler(d.Plates, d.Billing)
		plateRoutes := v1.Group("/licence-plates")
		{
			plateRoutes.GET("", plateH.List)
			plateRoutes.POST("", plateH.Register)
			plateRoutes.GET("/:id/billing", plateH.Billing)
			plateRoutes.POST("/:id/pay", plateH.Pay)
		}

		notificationH := handler.NewNotificationHandler(d.Notifications)
		notificationRoutes := v1.Group("/notifications")
		{
			notificationRoutes.GET("", notificationH.List)
			notificationRoutes.POST("/:id/seen", notificationH.MarkSeen)
		}
	}
	return r
}
