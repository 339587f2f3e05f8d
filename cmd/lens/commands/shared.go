// Package commands implements the lens CLI commands.
package commands

import (
	"log"
	"sync"

	"github.com/spf13/viper"

	"github.com/shaman2009/lang-lens/internal/graphclient"
	"github.com/shaman2009/lang-lens/internal/prefs"
	"github.com/shaman2009/lang-lens/internal/query"
)

var (
	cacheOnce sync.Once
	cache     *query.Cache
)

// newClient builds an Execution Service client from the configured server.
func newClient() *graphclient.Client {
	return graphclient.NewClient(viper.GetString("server"))
}

// queryCache returns the process-wide request cache.
func queryCache() *query.Cache {
	cacheOnce.Do(func() {
		cache = query.New()
	})
	return cache
}

// prefStore returns the file-backed preference store, degrading to memory
// when the home directory is unavailable.
func prefStore() prefs.Store {
	path, err := prefs.DefaultPath()
	if err != nil {
		log.Printf("prefs unavailable, using in-memory store: %v", err)
		return prefs.NewMemoryStore()
	}
	return prefs.NewFileStore(path)
}
