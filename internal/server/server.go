package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"escrowline/internal/domain"
	"escrowline/internal/ledger"
	"escrowline/internal/metrics"
	"escrowline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Ledger   ledger.Ledger
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state_transition"`
	Message string         `json:"message" example:"cannot fund from status completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"completed\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Escrowline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Ledger.Repo))
	router.Handle("/metrics", promhttp.Handler())
	hcfg := huma.DefaultConfig("Escrowline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Ledger)
	registerWorkflow(group, cfg.Ledger)
	registerDisputes(group, cfg.Ledger)
	registerReputation(group, cfg.Ledger)
	registerAdmin(group, cfg.Ledger)
	registerTransfers(group, cfg.Ledger)
	registerEvents(group, cfg.Ledger)
	registerAPIKeys(group, cfg.Ledger)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return newAPIError(http.StatusForbidden, "unauthorized", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidStateTransition), errors.Is(err, repo.ErrAlreadyReleased):
		return newAPIError(http.StatusConflict, "invalid_state_transition", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidDeadline):
		return newAPIError(http.StatusBadRequest, "invalid_deadline", err.Error(), nil)
	case errors.Is(err, ledger.ErrIncorrectPaymentAmount):
		return newAPIError(http.StatusBadRequest, "incorrect_payment_amount", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidAmount):
		return newAPIError(http.StatusBadRequest, "invalid_amount", err.Error(), nil)
	case errors.Is(err, ledger.ErrFeeExceedsMaximum):
		return newAPIError(http.StatusBadRequest, "fee_exceeds_maximum", err.Error(), nil)
	case errors.Is(err, ledger.ErrUnknownPaymentToken):
		return newAPIError(http.StatusBadRequest, "unknown_payment_token", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Escrowline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.CreateProject(ctx, ledger.CreateProjectOptions{
			Caller:       caller,
			Title:        input.Body.Title,
			Amount:       input.Body.Amount,
			PaymentToken: input.Body.PaymentToken,
			Deadline:     input.Body.Deadline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Client string `query:"client"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := l.ListProjects(ctx, repo.ProjectFilters{
			Status: input.Status,
			Client: input.Client,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := l.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-vault",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/vault",
		Summary:     "Get project vault entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.VaultEntry `json:"body"`
	}, error) {
		v, err := l.GetVault(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.VaultEntry `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Ledger statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		total, err := l.TotalProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: StatsResponse{TotalProjects: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user-projects",
		Method:      http.MethodGet,
		Path:        "/users/{address}/projects",
		Summary:     "Project ids for an address",
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*struct {
		Body UserProjectsResponse `json:"body"`
	}, error) {
		ids, err := l.UserProjects(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		if ids == nil {
			ids = []int64{}
		}
		return &struct {
			Body UserProjectsResponse `json:"body"`
		}{Body: UserProjectsResponse{Address: input.Address, ProjectIDs: ids}}, nil
	})
}

func registerWorkflow(api huma.API, l ledger.Ledger) {
	workflowErrors := []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusInternalServerError,
	}

	huma.Register(api, huma.Operation{
		OperationID: "accept-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/accept",
		Summary:     "Accept project as freelancer",
		Errors:      workflowErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.AcceptProject(ctx, input.ID, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fund-project",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/fund",
		Summary:     "Fund project escrow",
		Errors:      workflowErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64              `path:"id"`
		Body FundProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.FundProject(ctx, input.ID, caller, input.Body.PaidAmount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-work",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/start",
		Summary:     "Start work",
		Errors:      workflowErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.StartWork(ctx, input.ID, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-work",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/submit",
		Summary:     "Submit work for review",
		Errors:      workflowErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body SubmitWorkRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.SubmitWork(ctx, input.ID, caller, input.Body.DeliverableURI)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-completion",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/approve",
		Summary:     "Approve completion and release escrow",
		Errors:      workflowErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.ApproveCompletion(ctx, input.ID, caller)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerDisputes(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "initiate-dispute",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/dispute",
		Summary:     "Initiate dispute",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                  `path:"id"`
		Body InitiateDisputeRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.InitiateDispute(ctx, input.ID, caller, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-dispute",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/resolve",
		Summary:     "Resolve dispute",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body ResolveDisputeRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.ResolveDispute(ctx, input.ID, caller, input.Body.Winner, input.Body.Resolution)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerReputation(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "get-reputation",
		Method:      http.MethodGet,
		Path:        "/reputation/{address}",
		Summary:     "Reputation record",
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
	}) (*struct {
		Body domain.Reputation `json:"body"`
	}, error) {
		rep, err := l.GetReputation(ctx, input.Address)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Reputation `json:"body"`
		}{Body: rep}, nil
	})
}

func registerAdmin(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Ledger settings",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Settings `json:"body"`
	}, error) {
		s, err := l.GetSettings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settings `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-platform-fee",
		Method:      http.MethodPut,
		Path:        "/settings/fee",
		Summary:     "Set platform fee",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body SetFeeRequest `json:"body"`
	}) (*struct {
		Body domain.Settings `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := l.SetPlatformFee(ctx, caller, input.Body.FeeBps)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settings `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-treasury",
		Method:      http.MethodPut,
		Path:        "/settings/treasury",
		Summary:     "Set treasury address",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body SetTreasuryRequest `json:"body"`
	}) (*struct {
		Body domain.Settings `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := l.SetTreasuryAddress(ctx, caller, input.Body.Treasury)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Settings `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-fees",
		Method:      http.MethodPost,
		Path:        "/settings/fees/withdraw",
		Summary:     "Withdraw accrued token fees to treasury",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body WithdrawFeesRequest `json:"body"`
	}) (*struct {
		Body domain.Transfer `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := l.WithdrawFees(ctx, caller, input.Body.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Transfer `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-accrued-fees",
		Method:      http.MethodGet,
		Path:        "/settings/fees",
		Summary:     "Accrued fee balance for a token",
	}, func(ctx context.Context, input *struct {
		Token string `query:"token"`
	}) (*struct {
		Body AccruedFeesResponse `json:"body"`
	}, error) {
		amount, err := l.AccruedFees(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccruedFeesResponse `json:"body"`
		}{Body: AccruedFeesResponse{Token: input.Token, Amount: amount}}, nil
	})
}

// optionalID maps the negative query sentinel to an absent filter. Query
// parameters must be value types, so filters that can be omitted use -1.
func optionalID(id int64) *int64 {
	if id < 0 {
		return nil
	}
	return &id
}

func registerTransfers(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-transfers",
		Method:      http.MethodGet,
		Path:        "/transfers",
		Summary:     "List value transfers",
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `query:"project_id" default:"-1" doc:"Filter by project id; negative means all projects"`
		Recipient string `query:"recipient"`
		Limit     int    `query:"limit" default:"100"`
	}) (*struct {
		Body []domain.Transfer `json:"body"`
	}, error) {
		items, err := l.ListTransfers(ctx, repo.TransferFilters{
			ProjectID: optionalID(input.ProjectID),
			Recipient: input.Recipient,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Transfer{}
		}
		return &struct {
			Body []domain.Transfer `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events",
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `query:"project_id" default:"-1" doc:"Filter by project id; negative means all projects"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := l.Repo.LatestEvents(ctx, input.Limit, optionalID(input.ProjectID), input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerAPIKeys(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/auth/keys",
		Summary:       "Create API key for the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plaintext := uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			Address: caller,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(plaintext),
		}
		if err := l.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		stored, err := l.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: apiKeyResponse(stored, plaintext)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/auth/keys",
		Summary:     "List API keys for the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := l.Repo.ListAPIKeys(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		res := []APIKeyResponse{}
		for _, k := range keys {
			res = append(res, apiKeyResponse(k, ""))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/auth/keys/{id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := addressFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := l.Repo.ListAPIKeys(ctx, caller)
		if err != nil {
			return nil, handleError(err)
		}
		owned := false
		for _, k := range keys {
			if k.ID == input.ID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, newAPIError(http.StatusNotFound, "not_found", "api key not found", nil)
		}
		if err := l.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.Address == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{Address: p.Address, Source: p.Source}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		address := strings.TrimSpace(input.Body.Address)
		if address == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "address is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, address)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
