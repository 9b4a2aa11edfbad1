// auth.go — JWT-аутентификация административных маршрутов (управление
// ключами доступа). Подпись проверяется по JWKS Keycloak, роль admin
// определяется по группам или realm-ролям токена.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/certgate/internal/api/errors"
)

// contextKey — тип для ключей контекста.
type contextKey string

// ContextKeyClaims — claims администратора в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// RoleAdmin — роль, дающая доступ к управлению ключами.
const RoleAdmin = "admin"

// AuthClaims — обработанные claims токена.
type AuthClaims struct {
	// Subject — sub из JWT
	Subject string
	// PreferredUsername — preferred_username из JWT
	PreferredUsername string
	// Groups — группы без ведущего "/"
	Groups []string
	// Roles — роли из realm_access.roles
	Roles []string
	// EffectiveRole — admin или пустая строка
	EffectiveRole string
}

// keycloakClaims — raw claims Keycloak JWT.
type keycloakClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string       `json:"preferred_username"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
	Groups            []string     `json:"groups,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks        keyfunc.Keyfunc
	logger      *slog.Logger
	adminGroups []string
	issuer      string
	jwtLeeway   time.Duration
}

// NewJWTAuth создаёт JWT middleware с фоновым обновлением JWKS.
// caCertPath — опциональный CA-сертификат для TLS до Keycloak.
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	adminGroups []string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: jwksClientTimeout}
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, jwksClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
	}

	// NoErrorReturnFirstHTTPReq — стартуем, даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           jwksRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	a := NewJWTAuthWithKeyfunc(k, issuer, adminGroups, logger)
	a.jwtLeeway = jwtLeeway
	return a, nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовой keyfunc (тесты).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, adminGroups []string, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:        kf,
		logger:      logger.With(slog.String("component", "jwt_auth")),
		adminGroups: adminGroups,
		issuer:      issuer,
	}
}

func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("файл не содержит PEM-сертификатов")
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: caCertPool},
		},
	}, nil
}

// Middleware проверяет Bearer-токен и помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			raw := &keycloakClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, j.buildAuthClaims(raw))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) buildAuthClaims(raw *keycloakClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
	}
	for _, g := range raw.Groups {
		claims.Groups = append(claims.Groups, strings.TrimPrefix(g, "/"))
	}
	if raw.RealmAccess != nil {
		claims.Roles = raw.RealmAccess.Roles
	}

	isAdmin := slices.Contains(claims.Roles, RoleAdmin)
	for _, g := range claims.Groups {
		if slices.Contains(j.adminGroups, g) {
			isAdmin = true
			break
		}
	}
	if isAdmin {
		claims.EffectiveRole = RoleAdmin
	}
	return claims
}

// RequireRole пропускает только субъектов с одной из ролей.
// Используется после JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if !slices.Contains(roles, claims.EffectiveRole) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext извлекает AuthClaims из контекста или возвращает nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}
