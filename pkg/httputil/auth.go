package httputil

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// Authenticate verifies the HS256 bearer token and attaches the subject as
// the request actor. It does not load permissions; each operation resolves
// the principal itself. An empty issuer disables the issuer check.
func Authenticate(secret, issuer string, log *logger.Logger) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ErrorLocalized(w, r, errors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				ErrorLocalized(w, r, errors.Unauthorized("invalid authorization header format"))
				return
			}

			token, err := parser.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				log.Debug().Err(err).Msg("token validation failed")
				if stderrors.Is(err, jwt.ErrTokenExpired) {
					ErrorLocalized(w, r, errors.TokenExpired())
				} else {
					ErrorLocalized(w, r, errors.TokenInvalid())
				}
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				ErrorLocalized(w, r, errors.TokenInvalid())
				return
			}

			subject, _ := claims.GetSubject()
			if subject == "" {
				ErrorLocalized(w, r, errors.TokenInvalid())
				return
			}
			username, _ := claims["username"].(string)

			ctx := actor.WithActor(r.Context(), &actor.Actor{ID: subject, Username: username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
