package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/engine/auth"
	"pactline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"operation in state executed: already executed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Pactline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Pactline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerPacts(group, cfg.Engine)
	registerGate(group, cfg.Engine)
	registerTreasury(group, cfg.Engine)
	registerRegistry(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerProposals(group, cfg.Engine)
	registerDisputes(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

// handleError maps engine errors to the envelope. DownstreamError is checked
// first because it wraps its cause.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var de auth.DownstreamError
	if errors.As(err, &de) {
		return newAPIError(http.StatusBadGateway, "downstream_failure", err.Error(), map[string]any{"op": de.Op})
	}
	var ue auth.UnauthorizedError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), map[string]any{"role": ue.Role})
	}
	var ife auth.InsufficientFundsError
	if errors.As(err, &ife) {
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_funds", err.Error(), map[string]any{
			"balance":   ife.Balance,
			"requested": ife.Requested,
		})
	}
	var se auth.StateError
	if errors.As(err, &se) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"entity": se.Entity})
	}
	var ae auth.ArgumentError
	if errors.As(err, &ae) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ae.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
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
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusUnprocessableEntity:
		return "insufficient_funds"
	case http.StatusBadGateway:
		return "downstream_failure"
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
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
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
	openPaths := map[string]bool{
		ensureLeadingSlash(path.Join(basePath, "health")):         true,
		ensureLeadingSlash(path.Join(basePath, "auth/dev/login")): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func ensureLeadingSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Pactline API Docs</title>
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

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/status",
		Summary:     "Pact status",
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		p, err := e.GetPact(ctx, input.PactID)
		if err != nil {
			return nil, handleError(err)
		}
		sum, err := e.TreasurySummary(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.TaskCounts(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"pact_id":     p.ID,
			"status":      p.Status,
			"treasury":    sum,
			"task_counts": counts,
		}}, nil
	})
}

func registerPacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-pact",
		Method:        http.MethodPost,
		Path:          "/pacts",
		Summary:       "Create pact",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreatePactRequest `json:"body"`
	}) (*struct {
		Body PactResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if len(input.Body.Parties) != 2 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "exactly two parties required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		seed := engineConfigFor(e, input.Body.ID, input.Body.Parties[0], input.Body.Parties[1])
		p, err := e.InitPact(ctx, seed, desc, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PactResponse `json:"body"`
		}{Body: pactResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pacts",
		Method:      http.MethodGet,
		Path:        "/pacts",
		Summary:     "List pacts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PactResponse `json:"body"`
	}, error) {
		items, err := e.ListPacts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PactResponse `json:"body"`
		}{Body: mapPacts(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pact",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}",
		Summary:     "Get pact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
	}) (*struct {
		Body PactResponse `json:"body"`
	}, error) {
		p, err := e.GetPact(ctx, input.PactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PactResponse `json:"body"`
		}{Body: pactResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pact-config",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/config",
		Summary:     "Get pact config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
	}) (*struct {
		Body PactConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetPactConfig(ctx, input.PactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PactConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerGate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "propose-operation",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/operations",
		Summary:       "Propose gate operation",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PactID string                  `path:"pact_id"`
		Body   ProposeOperationRequest `json:"body"`
	}) (*struct {
		Body OperationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.ProposeOperation(ctx, input.PactID, actorID, input.Body.Target, input.Body.Value, input.Body.Payload)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OperationResponse `json:"body"`
		}{Body: operationResponse(op)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-operation",
		Method:      http.MethodPost,
		Path:        "/pacts/{pact_id}/operations/{operation_id}/approve",
		Summary:     "Approve gate operation",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PactID      string `path:"pact_id"`
		OperationID int64  `path:"operation_id"`
	}) (*struct {
		Body OperationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.ApproveOperation(ctx, input.PactID, actorID, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OperationResponse `json:"body"`
		}{Body: operationResponse(op)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-operation",
		Method:      http.MethodPost,
		Path:        "/pacts/{pact_id}/operations/{operation_id}/execute",
		Summary:     "Execute gate operation",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		PactID      string `path:"pact_id"`
		OperationID int64  `path:"operation_id"`
	}) (*struct {
		Body OperationResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.ExecuteOperation(ctx, input.PactID, actorID, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OperationResponse `json:"body"`
		}{Body: operationResponse(op)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-operation",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/operations/{operation_id}",
		Summary:     "Get gate operation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID      string `path:"pact_id"`
		OperationID int64  `path:"operation_id"`
	}) (*struct {
		Body OperationResponse `json:"body"`
	}, error) {
		op, err := e.GetOperation(ctx, input.PactID, input.OperationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OperationResponse `json:"body"`
		}{Body: operationResponse(op)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-operations",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/operations",
		Summary:     "List gate operations",
	}, func(ctx context.Context, input *struct {
		PactID  string `path:"pact_id"`
		Pending bool   `query:"pending"`
	}) (*struct {
		Body []OperationResponse `json:"body"`
	}, error) {
		items, err := e.ListOperations(ctx, input.PactID, input.Pending)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OperationResponse `json:"body"`
		}{Body: mapOperations(items)}, nil
	})
}

func registerTreasury(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "deposit",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/treasury/deposits",
		Summary:       "Deposit into the treasury",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PactID string         `path:"pact_id"`
		Body   DepositRequest `json:"body"`
	}) (*struct {
		Body domain.Deposit `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Deposit(ctx, input.PactID, actorID, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Deposit `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "withdraw",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/treasury/withdrawals",
		Summary:       "Withdraw from the treasury",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		PactID string          `path:"pact_id"`
		Body   WithdrawRequest `json:"body"`
	}) (*struct {
		Body domain.Withdrawal `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.Withdraw(ctx, input.PactID, actorID, input.Body.Recipient, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Withdrawal `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "treasury-summary",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/treasury",
		Summary:     "Treasury summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
	}) (*struct {
		Body TreasuryResponse `json:"body"`
	}, error) {
		sum, err := e.TreasurySummary(ctx, input.PactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TreasuryResponse `json:"body"`
		}{Body: TreasuryResponse{
			PactID:           sum.PactID,
			Balance:          sum.Balance,
			TotalDeposits:    sum.TotalDeposits,
			TotalWithdrawals: sum.TotalWithdrawals,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deposits",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/treasury/deposits",
		Summary:     "List deposits",
	}, func(ctx context.Context, input *struct {
		PactID    string `path:"pact_id"`
		Depositor string `query:"depositor"`
	}) (*struct {
		Body []domain.Deposit `json:"body"`
	}, error) {
		items, err := e.ListDeposits(ctx, input.PactID, input.Depositor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Deposit `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-withdrawals",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/treasury/withdrawals",
		Summary:     "List withdrawals",
	}, func(ctx context.Context, input *struct {
		PactID    string `path:"pact_id"`
		Recipient string `query:"recipient"`
	}) (*struct {
		Body []domain.Withdrawal `json:"body"`
	}, error) {
		items, err := e.ListWithdrawals(ctx, input.PactID, input.Recipient)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Withdrawal `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-withdrawers",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/treasury/withdrawers",
		Summary:     "List authorized withdrawers",
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		items, err := e.ListWithdrawers(ctx, input.PactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/accounts/{participant}",
		Summary:     "External account balance",
	}, func(ctx context.Context, input *struct {
		PactID      string `path:"pact_id"`
		Participant string `path:"participant"`
	}) (*struct {
		Body AccountResponse `json:"body"`
	}, error) {
		acct, err := e.Account(ctx, input.PactID, input.Participant)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AccountResponse `json:"body"`
		}{Body: AccountResponse{Participant: acct.Participant, Balance: acct.Balance}}, nil
	})
}

func registerRegistry(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-acknowledgment",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/acks",
		Summary:       "Submit acknowledgment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PactID string                      `path:"pact_id"`
		Body   SubmitAcknowledgmentRequest `json:"body"`
	}) (*struct {
		Body AcknowledgmentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SubmitAcknowledgment(ctx, input.PactID, actorID, input.Body.Target, input.Body.Message, input.Body.Signature, input.Body.TS)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AcknowledgmentResponse `json:"body"`
		}{Body: ackResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-acknowledgments",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/acks",
		Summary:     "List acknowledgments",
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
		Signer string `query:"signer"`
	}) (*struct {
		Body []AcknowledgmentResponse `json:"body"`
	}, error) {
		items, err := e.ListAcknowledgments(ctx, input.PactID, input.Signer)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]AcknowledgmentResponse, 0, len(items))
		for _, a := range items {
			out = append(out, ackResponse(a))
		}
		return &struct {
			Body []AcknowledgmentResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-handshake",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/handshakes/{party_a}/{party_b}",
		Summary:     "Mutual handshake between two participants",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
		PartyA string `path:"party_a"`
		PartyB string `path:"party_b"`
	}) (*struct {
		Body HandshakeResponse `json:"body"`
	}, error) {
		h, err := e.GetMutualHandshake(ctx, input.PactID, input.PartyA, input.PartyB)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HandshakeResponse `json:"body"`
		}{Body: handshakeResponse(h)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-handshakes",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/handshakes",
		Summary:     "List handshakes",
	}, func(ctx context.Context, input *struct {
		PactID      string `path:"pact_id"`
		Participant string `query:"participant"`
	}) (*struct {
		Body []HandshakeResponse `json:"body"`
	}, error) {
		items, err := e.ListHandshakes(ctx, input.PactID, input.Participant)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]HandshakeResponse, 0, len(items))
		for _, h := range items {
			out = append(out, handshakeResponse(h))
		}
		return &struct {
			Body []HandshakeResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PactID string            `path:"pact_id"`
		Body   CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, input.PactID, actorID, input.Body.Title, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
		TaskID int64  `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.PactID, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		PactID   string `path:"pact_id"`
		Creator  string `query:"creator"`
		Assignee string `query:"assignee"`
		Status   string `query:"status" enum:",created,assigned,in_progress,under_review,accepted,needs_revision,cancelled"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.ListTasks(ctx, input.PactID, input.Creator, input.Assignee, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	taskAction := func(operationID, pathSuffix, summary string, action func(ctx context.Context, pactID, actorID string, taskID int64) (domain.Task, error)) {
		huma.Register(api, huma.Operation{
			OperationID: operationID,
			Method:      http.MethodPost,
			Path:        "/pacts/{pact_id}/tasks/{task_id}/" + pathSuffix,
			Summary:     summary,
			Errors: []int{
				http.StatusUnauthorized,
				http.StatusNotFound,
				http.StatusConflict,
				http.StatusUnprocessableEntity,
			},
		}, func(ctx context.Context, input *struct {
			PactID string `path:"pact_id"`
			TaskID int64  `path:"task_id"`
		}) (*struct {
			Body TaskResponse `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			t, err := action(ctx, input.PactID, actorID, input.TaskID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body TaskResponse `json:"body"`
			}{Body: taskResponse(t)}, nil
		})
	}
	taskAction("start-task", "start", "Start task", func(ctx context.Context, pactID, actorID string, taskID int64) (domain.Task, error) {
		return e.StartTask(ctx, pactID, actorID, taskID)
	})
	taskAction("complete-task", "complete", "Submit task for review", func(ctx context.Context, pactID, actorID string, taskID int64) (domain.Task, error) {
		return e.CompleteTask(ctx, pactID, actorID, taskID)
	})
	taskAction("accept-task", "accept", "Accept reviewed task and pay assignee", func(ctx context.Context, pactID, actorID string, taskID int64) (domain.Task, error) {
		return e.AcceptTask(ctx, pactID, actorID, taskID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "request-revision",
		Method:      http.MethodPost,
		Path:        "/pacts/{pact_id}/tasks/{task_id}/request-revision",
		Summary:     "Request task revision",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PactID string                 `path:"pact_id"`
		TaskID int64                  `path:"task_id"`
		Body   RequestRevisionRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RequestRevision(ctx, input.PactID, actorID, input.TaskID, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerProposals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-proposal",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/proposals",
		Summary:       "Create proposal",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PactID string                `path:"pact_id"`
		Body   CreateProposalRequest `json:"body"`
	}) (*struct {
		Body ProposalResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProposal(ctx, input.PactID, actorID, input.Body.Description, input.Body.Target, input.Body.Value, input.Body.Payload)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalResponse `json:"body"`
		}{Body: proposalResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "vote",
		Method:      http.MethodPost,
		Path:        "/pacts/{pact_id}/proposals/{proposal_id}/votes",
		Summary:     "Vote on proposal",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PactID     string      `path:"pact_id"`
		ProposalID int64       `path:"proposal_id"`
		Body       VoteRequest `json:"body"`
	}) (*struct {
		Body ProposalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Vote(ctx, input.PactID, actorID, input.ProposalID, input.Body.Support)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalResponse `json:"body"`
		}{Body: proposalResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "can-execute-proposal",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/proposals/{proposal_id}/can-execute",
		Summary:     "Check whether a proposal is executable",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID     string `path:"pact_id"`
		ProposalID int64  `path:"proposal_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		ok, reason, err := e.CanExecute(ctx, input.PactID, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		body := map[string]any{"can_execute": ok}
		if reason != "" {
			body["reason"] = reason
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-proposal",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/proposals/{proposal_id}",
		Summary:     "Get proposal",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID     string `path:"pact_id"`
		ProposalID int64  `path:"proposal_id"`
	}) (*struct {
		Body ProposalResponse `json:"body"`
	}, error) {
		p, err := e.GetProposal(ctx, input.PactID, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProposalResponse `json:"body"`
		}{Body: proposalResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-proposals",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/proposals",
		Summary:     "List proposals",
	}, func(ctx context.Context, input *struct {
		PactID string `path:"pact_id"`
	}) (*struct {
		Body []ProposalResponse `json:"body"`
	}, error) {
		items, err := e.ListProposals(ctx, input.PactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProposalResponse `json:"body"`
		}{Body: mapProposals(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-votes",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/proposals/{proposal_id}/votes",
		Summary:     "List votes",
	}, func(ctx context.Context, input *struct {
		PactID     string `path:"pact_id"`
		ProposalID int64  `path:"proposal_id"`
	}) (*struct {
		Body []domain.Vote `json:"body"`
	}, error) {
		items, err := e.ListVotes(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Vote `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerDisputes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-dispute",
		Method:        http.MethodPost,
		Path:          "/pacts/{pact_id}/disputes",
		Summary:       "Create dispute",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		PactID string               `path:"pact_id"`
		Body   CreateDisputeRequest `json:"body"`
	}) (*struct {
		Body DisputeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDispute(ctx, input.PactID, actorID, input.Body.Counterparty, input.Body.Type, input.Body.RelatedID, input.Body.Description, input.Body.Evidence)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisputeResponse `json:"body"`
		}{Body: disputeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-evidence",
		Method:      http.MethodPost,
		Path:        "/pacts/{pact_id}/disputes/{dispute_id}/evidence",
		Summary:     "Submit dispute evidence",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PactID    string                `path:"pact_id"`
		DisputeID int64                 `path:"dispute_id"`
		Body      SubmitEvidenceRequest `json:"body"`
	}) (*struct {
		Body DisputeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.SubmitEvidence(ctx, input.PactID, actorID, input.DisputeID, input.Body.Evidence)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisputeResponse `json:"body"`
		}{Body: disputeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-dispute",
		Method:      http.MethodPost,
		Path:        "/pacts/{pact_id}/disputes/{dispute_id}/cancel",
		Summary:     "Cancel dispute",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		PactID    string `path:"pact_id"`
		DisputeID int64  `path:"dispute_id"`
	}) (*struct {
		Body DisputeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CancelDispute(ctx, input.PactID, actorID, input.DisputeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisputeResponse `json:"body"`
		}{Body: disputeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dispute",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/disputes/{dispute_id}",
		Summary:     "Get dispute",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PactID    string `path:"pact_id"`
		DisputeID int64  `path:"dispute_id"`
	}) (*struct {
		Body DisputeResponse `json:"body"`
	}, error) {
		d, err := e.GetDispute(ctx, input.PactID, input.DisputeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DisputeResponse `json:"body"`
		}{Body: disputeResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-disputes",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/disputes",
		Summary:     "List disputes",
	}, func(ctx context.Context, input *struct {
		PactID      string `path:"pact_id"`
		Participant string `query:"participant"`
		Status      string `query:"status" enum:",created,evidence_submitted,under_review,resolved,cancelled"`
	}) (*struct {
		Body []DisputeResponse `json:"body"`
	}, error) {
		items, err := e.ListDisputes(ctx, input.PactID, input.Participant, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DisputeResponse `json:"body"`
		}{Body: mapDisputes(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/pacts/{pact_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PactID     string `path:"pact_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:",pact,operation,deposit,withdrawal,withdrawer,acknowledgment,handshake,task,proposal,dispute"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.PactID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		rawKey := "plk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		key := domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   input.Body.ActorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(rawKey),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			ActorID:   key.ActorID,
			Name:      key.Name,
			Key:       rawKey,
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
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
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Source:  principal.Source,
		}}, nil
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
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

// engineConfigFor picks the config used to initialize a pact: the engine's
// own config when the IDs line up, a generated default otherwise.
func engineConfigFor(e engine.Engine, pactID, partyA, partyB string) *config.Config {
	if e.Config != nil && e.Config.Pact.ID == pactID {
		return e.Config
	}
	return config.Default(pactID, partyA, partyB)
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
