package controllers

import (
	"net/http"

	"github.com/mfigueroa/stockroom-backend/api/responses"
	pkgdb "github.com/mfigueroa/stockroom-backend/pkg/db"
	pkgerrors "github.com/mfigueroa/stockroom-backend/pkg/errors"
	"github.com/mfigueroa/stockroom-backend/pkg/logger"
	pkgredis "github.com/mfigueroa/stockroom-backend/pkg/redis"
)

func HealthLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the backing stores so the endpoint fails while either
// is unreachable.
func HealthReady(database pkgdb.Pinger, cache pkgredis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database != nil {
			if err := database.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
