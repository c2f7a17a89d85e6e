package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/permissions"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
)

// RouterDeps carries everything the HTTP layer needs.
type RouterDeps struct {
	DB       *gorm.DB
	UserRepo repository.UserRepository
	RoleRepo repository.RoleRepository

	Households *services.HouseholdService
	Persons    *services.PersonService
	History    *services.HistoryService
	Statistics *services.StatisticsService
	Residences *services.ResidenceService

	Tokens         *TokenIssuer
	Responder      Responder
	AllowedOrigins []string
	SecureCookie   bool
	RequestTimeout time.Duration

	// optional
	WebSocket      http.HandlerFunc
	MetricsHandler http.Handler
}

func gate(permission string, h http.HandlerFunc) http.Handler {
	return RequireGlobalPermission(permission, h)
}

// NewRouter builds the chi router with every API route.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	rs := d.Responder
	authHandler := NewAuthHandler(d.UserRepo, d.Tokens, rs)
	authHandler.SecureCookie = d.SecureCookie
	setupHandler := NewSetupHandler(d.DB, d.UserRepo, d.RoleRepo, rs)
	adminUserHandler := NewAdminUserHandler(d.UserRepo, d.RoleRepo, rs)
	adminRoleHandler := NewAdminRoleHandler(d.RoleRepo, d.UserRepo, rs)
	permissionHandler := &PermissionHandler{}
	householdHandler := NewHouseholdHandler(d.Households, rs)
	personHandler := NewPersonHandler(d.Persons, rs)
	historyHandler := NewHistoryHandler(d.History, rs)
	statisticsHandler := NewStatisticsHandler(d.Statistics, rs)
	residenceHandler := NewResidenceHandler(d.Residences, rs)

	authenticated := func(h http.Handler) http.Handler {
		return AuthMiddleware(d.Tokens, d.UserRepo, h)
	}

	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// long-lived; registered before the timeout middleware
		if d.WebSocket != nil {
			r.With(authenticated).Method(http.MethodGet, "/ws", gate(permissions.HistoryView, d.WebSocket))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/logout", authHandler.Logout)
			r.Post("/setup/admin", setupHandler.CreateFirstAdmin)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)

				r.Get("/auth/me", authHandler.CurrentUser)
				r.Get("/permissions", permissionHandler.ListPermissionDefinitions)
				r.Get("/permissions/keys", permissionHandler.ListPermissionKeys)

				r.Route("/households", func(r chi.Router) {
					r.Method(http.MethodGet, "/", gate(permissions.HouseholdView, householdHandler.ListHouseholds))
					r.Method(http.MethodPost, "/", gate(permissions.HouseholdCreate, householdHandler.RegisterHousehold))
					r.Method(http.MethodGet, "/next-id", gate(permissions.HouseholdCreate, householdHandler.NextHouseholdCode))
					r.Route("/{id}", func(r chi.Router) {
						r.Method(http.MethodGet, "/", gate(permissions.HouseholdView, householdHandler.GetHousehold))
						r.Method(http.MethodPut, "/", gate(permissions.HouseholdEdit, householdHandler.UpdateHousehold))
						r.Method(http.MethodDelete, "/", gate(permissions.HouseholdDelete, householdHandler.DeleteHousehold))
						r.Method(http.MethodGet, "/persons", gate(permissions.HouseholdView, householdHandler.ListHouseholdPersons))
						r.Method(http.MethodPost, "/split", gate(permissions.HouseholdSplit, householdHandler.SplitHousehold))
						r.Method(http.MethodPost, "/transfer", gate(permissions.HouseholdTransfer, householdHandler.TransferHousehold))
					})
				})

				r.Route("/persons", func(r chi.Router) {
					r.Method(http.MethodGet, "/", gate(permissions.PersonView, personHandler.ListPersons))
					r.Method(http.MethodPost, "/", gate(permissions.PersonCreate, personHandler.CreatePerson))
					r.Route("/{id}", func(r chi.Router) {
						r.Method(http.MethodGet, "/", gate(permissions.PersonView, personHandler.GetPerson))
						r.Method(http.MethodPut, "/", gate(permissions.PersonEdit, personHandler.UpdatePerson))
						r.Method(http.MethodDelete, "/", gate(permissions.PersonDelete, personHandler.DeletePerson))
						r.Method(http.MethodPost, "/move-out", gate(permissions.PersonEdit, personHandler.MoveOutPerson))
						r.Method(http.MethodPost, "/deceased", gate(permissions.PersonEdit, personHandler.MarkDeceased))
						r.Method(http.MethodGet, "/history", gate(permissions.HistoryView, historyHandler.PersonHistory))
					})
				})

				r.Route("/history", func(r chi.Router) {
					r.Method(http.MethodGet, "/households", gate(permissions.HistoryView, historyHandler.HouseholdHistory))
					r.Method(http.MethodGet, "/operations/{operationID}", gate(permissions.HistoryView, historyHandler.Operation))
				})

				r.Method(http.MethodGet, "/statistics", gate(permissions.StatisticsView, statisticsHandler.Overview))

				r.Route("/residences", func(r chi.Router) {
					r.Method(http.MethodGet, "/", gate(permissions.ResidenceView, residenceHandler.ListResidences))
					r.Method(http.MethodPost, "/", gate(permissions.ResidenceManage, residenceHandler.CreateResidence))
					r.Route("/{id}", func(r chi.Router) {
						r.Method(http.MethodGet, "/", gate(permissions.ResidenceView, residenceHandler.GetResidence))
						r.Method(http.MethodPut, "/", gate(permissions.ResidenceManage, residenceHandler.UpdateResidence))
						r.Method(http.MethodDelete, "/", gate(permissions.ResidenceManage, residenceHandler.DeleteResidence))
						r.Method(http.MethodPost, "/revoke", gate(permissions.ResidenceManage, residenceHandler.RevokeResidence))
					})
				})

				r.Route("/admin", func(r chi.Router) {
					r.Route("/users", func(r chi.Router) {
						r.Method(http.MethodGet, "/", gate(permissions.UserList, adminUserHandler.ListUsers))
						r.Method(http.MethodPost, "/", gate(permissions.UserCreate, adminUserHandler.CreateUser))
						r.Route("/{id}", func(r chi.Router) {
							r.Method(http.MethodGet, "/", gate(permissions.UserList, adminUserHandler.GetUser))
							r.Method(http.MethodPut, "/", gate(permissions.UserEdit, adminUserHandler.UpdateUser))
							r.Method(http.MethodDelete, "/", gate(permissions.UserDelete, adminUserHandler.DeleteUser))
						})
					})
					r.Route("/roles", func(r chi.Router) {
						r.Method(http.MethodGet, "/", gate(permissions.RoleList, adminRoleHandler.ListRoles))
						r.Method(http.MethodPost, "/", gate(permissions.RoleCreate, adminRoleHandler.CreateRole))
						r.Route("/{roleID}", func(r chi.Router) {
							r.Method(http.MethodGet, "/", gate(permissions.RoleList, adminRoleHandler.GetRole))
							r.Method(http.MethodPut, "/", gate(permissions.RoleEdit, adminRoleHandler.UpdateRole))
							r.Method(http.MethodDelete, "/", gate(permissions.RoleDelete, adminRoleHandler.DeleteRole))
							r.Method(http.MethodPost, "/users", gate(permissions.RoleEdit, adminRoleHandler.AddUserToRole))
							r.Method(http.MethodDelete, "/users/{userID}", gate(permissions.RoleEdit, adminRoleHandler.RemoveUserFromRole))
						})
					})
				})
			})
		})
	})

	return r
}
