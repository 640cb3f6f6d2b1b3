package app

import (
	_ "embed"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/audit"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/config"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/handlers"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/httpx"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/middleware"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/store"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/wizard"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Tokens    middleware.TokenStore
	AuditLog  audit.Writer
	Phones    importer.PhoneLookup
	Committer *importer.Committer
	Sessions  wizard.Store
}

// NewDeps builds the Postgres-backed dependencies.
func NewDeps(cfg config.Config, pool *pgxpool.Pool, sessions wizard.Store, logger *zap.Logger) Deps {
	q := store.New(pool)
	customers := store.NewCustomers(pool)

	committer := importer.NewCommitter(customers, logger.Named("committer"))
	committer.Intervals = customers
	committer.Schedule = importer.Schedule{Default: importer.Interval{
		Days:  cfg.ServiceIntervalDays,
		Miles: cfg.ServiceIntervalMiles,
	}}
	committer.EnrichExisting = cfg.ImportEnrichExisting

	return Deps{
		Tokens:    q,
		AuditLog:  q,
		Phones:    customers,
		Committer: committer,
		Sessions:  sessions,
	}
}

// Spreadsheet uploads arrive with vendor content types the validator has no
// decoder for; they are validated as opaque files.
var uploadContentTypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel",
	"application/vnd.ms-excel.sheet.macroenabled.12",
	"text/tab-separated-values",
}

var registerDecoders sync.Once

func loadSpec() (*openapi3.T, error) {
	registerDecoders.Do(func() {
		for _, ct := range uploadContentTypes {
			openapi3filter.RegisterBodyDecoder(ct, openapi3filter.FileBodyDecoder)
		}
	})

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

func NewRouter(cfg config.Config, deps Deps, logger *zap.Logger) (http.Handler, error) {
	doc, err := loadSpec()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.IsProd()))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.LimitBodyBytesWithOverrides(cfg.APIMaxBodyBytes, []middleware.BodyLimitOverride{
		{PathPrefix: "/imports", MediaType: "multipart/form-data", MaxBytes: cfg.ImportMaxFileBytes},
		{PathPrefix: "/imports/commit", MaxBytes: cfg.ImportMaxFileBytes},
	}))

	api := chi.NewRouter()
	limiter := middleware.NewIPRateLimiterWithMaxEntries(cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitMaxIPs)
	api.Use(limiter.Middleware("Too many requests"))
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get(middleware.RequestIDHeader)
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	var auditLogger *audit.Logger
	if deps.AuditLog != nil {
		auditLogger = audit.NewLogger(deps.AuditLog, logger)
	}
	h := handlers.NewServer(cfg, deps.Sessions, deps.Phones, deps.Committer, auditLogger, logger)

	authMW := middleware.AuthMiddleware{Tokens: deps.Tokens, Logger: logger}
	read := middleware.RequirePermission(middleware.PermImportsRead)
	write := middleware.RequirePermission(middleware.PermImportsWrite)

	api.Group(func(public chi.Router) {
		public.Get("/health", h.GetHealth)
		public.Get("/imports/templates/customers.csv", h.GetImportTemplateCsv)
		public.Get("/imports/templates/customers.xlsx", h.GetImportTemplateXlsx)
	})

	api.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)

		protected.With(write).Post("/imports", h.PostImports)
		protected.With(write).Post("/imports/commit", h.PostImportsCommit)
		protected.With(read).Post("/imports/duplicates/check", h.PostImportsDuplicatesCheck)

		protected.Route("/imports/{sessionId}", func(session chi.Router) {
			session.With(read).Get("/", h.GetImportSession)
			session.With(write).Delete("/", h.DeleteImportSession)
			session.With(read).Get("/issues.csv", h.GetImportIssuesCsv)
			session.With(write).Put("/file", h.PutImportFile)
			session.With(write).Post("/next", h.PostImportNext)
			session.With(write).Post("/back", h.PostImportBack)
			session.With(write).Put("/mappings/{column}", h.PutImportMapping)
			session.With(write).Patch("/rows/{rowIndex}", h.PatchImportRow)
			session.With(write).Put("/consent", h.PutImportConsent)
			session.With(write).Post("/commit", h.PostImportCommit)
			session.With(write).Post("/cancel", h.PostImportCancel)
			session.With(write).Post("/reset", h.PostImportReset)
		})
	})

	r.Mount("/api", api)
	return r, nil
}
