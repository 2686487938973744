// Пакет openapi — embedded OpenAPI-спецификация Record Module.
// Спецификация валидируется при старте, отдаётся на /api/v1/openapi.json
// и используется для валидации JSON-запросов через openapi3filter.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	apierrors "github.com/bigkaa/medrecord/record-module/internal/api/errors"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec — загруженная OpenAPI-спецификация с роутером для валидации запросов.
type Spec struct {
	doc    *openapi3.T
	router routers.Router
	asJSON []byte
}

// Load загружает embedded спецификацию и валидирует её.
// Ошибка — дефект сборки, приложение не должно стартовать.
func Load(ctx context.Context) (*Spec, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки OpenAPI-спецификации: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("невалидная OpenAPI-спецификация: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания OpenAPI-роутера: %w", err)
	}

	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации спецификации: %w", err)
	}

	return &Spec{doc: doc, router: router, asJSON: asJSON}, nil
}

// ServeSpec отдаёт спецификацию в формате JSON.
func (s *Spec) ServeSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.asJSON)
}

// ValidationMiddleware возвращает middleware, валидирующий JSON-запросы
// против спецификации. Применяется только к JSON endpoints: multipart
// и скачивание контента валидируются в handlers.
// Аутентификация выполняется отдельным middleware, security-требования
// спецификации здесь не проверяются.
func (s *Spec) ValidationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, pathParams, err := s.router.FindRoute(r)
			if err != nil {
				// Неизвестный маршрут — пусть решает chi (404)
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}

			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.ValidationError(w, fmt.Sprintf("Запрос не соответствует спецификации API: %v", err))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
