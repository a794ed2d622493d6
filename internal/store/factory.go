package store

import (
	"context"
	"fmt"
	"os"

	"finzops/internal/infra/dynamo"
	"finzops/internal/infra/memstore"
)

// Open selects a Store implementation using environment variables.
//
//	FINZOPS_STORE_DRIVER: dynamo|memory (default dynamo)
//	FINZOPS_DYNAMO_ENDPOINT: optional custom endpoint (DynamoDB Local)
func Open(ctx context.Context, region string) (Store, error) {
	driver := os.Getenv("FINZOPS_STORE_DRIVER")
	if driver == "" {
		driver = string(DriverDynamo)
	}
	switch Driver(driver) {
	case DriverDynamo:
		return dynamo.OpenFromEnv(ctx, region)
	case DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}
