package cmd

import (
	"strings"

	"github.com/flowmill/flowmill/pkg/admission"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/persistence/file"
	redis "github.com/redis/go-redis/v9"
)

func NewPersistence(databaseURL string) persistence.Persistence {
	return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
}

// NewAdmissionRegistry selects the admission backend: Redis when a URL is
// configured, otherwise the in-process registry.
func NewAdmissionRegistry(redisURL string) admission.Registry {
	if redisURL == "" {
		return admission.NewMemoryRegistry()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic("Invalid Redis URL: " + err.Error())
	}

	return admission.NewRedisRegistry(redis.NewClient(opts))
}
