package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CareMarketBack/internal/config"
	"github.com/saeid-a/CareMarketBack/internal/handlers"
	"github.com/saeid-a/CareMarketBack/internal/middleware"
	"github.com/saeid-a/CareMarketBack/internal/services"
	chatws "github.com/saeid-a/CareMarketBack/internal/websocket"
)

// Services bundles the application services exposed over HTTP.
type Services struct {
	Chat          *services.ChatService
	Notifications *services.NotificationService
	Appointments  *services.AppointmentService
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, svc Services, chatHub *chatws.Hub) {
	chatHandler := handlers.NewChatHandler(svc.Chat, chatHub, cfg.JWTSecret)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications)
	appointmentHandler := handlers.NewAppointmentHandler(svc.Appointments)

	api := app.Group("/api")

	// Registered before the authenticated group so the upgrade can carry
	// its token in the query string.
	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Post("/:id/messages", chatHandler.SendMessage)
	conversations.Post("/:id/read", chatHandler.MarkAsRead)
	conversations.Delete("/:id", chatHandler.DeleteConversation)

	messages := authProtected.Group("/messages")
	messages.Get("/unread-count", chatHandler.UnreadCount)
	messages.Delete("/:id", chatHandler.DeleteMessage)

	notifications := authProtected.Group("/notifications")
	notifications.Get("", notificationHandler.List)
	notifications.Get("/unread-count", notificationHandler.UnreadCount)
	notifications.Post("/read-all", notificationHandler.MarkAllRead)
	notifications.Post("/:id/read", notificationHandler.MarkRead)
	notifications.Delete("/:id", notificationHandler.Delete)

	appointments := authProtected.Group("/appointments")
	appointments.Post("", appointmentHandler.Create)
	appointments.Post("/quick", appointmentHandler.QuickBook)
	appointments.Get("", appointmentHandler.List)
	appointments.Get("/all", middleware.RequireRole(services.RoleAdmin), appointmentHandler.ListAll)
	appointments.Get("/availability", appointmentHandler.Availability)
	appointments.Put("/:id/status", appointmentHandler.UpdateStatus)
}
