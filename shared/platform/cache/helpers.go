package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// AsyncCacheDelete invalida la clave en background sin bloquear al llamador.
// Se usa un contexto propio: la invalidación debe completarse aunque el
// contexto del mensaje ya haya terminado.
func AsyncCacheDelete(cache Cache, key string, log *zap.Logger) {
	if cache == nil {
		return
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		if err := cache.Delete(cacheCtx, key); err != nil {
			log.Warn("Cache deletion failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}()
}
