package common

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRabbitMQ(t *testing.T) string {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12.11-management-alpine", rabbitmq.WithAdminUsername("guest"), rabbitmq.WithAdminPassword("guest"))
	if err != nil {
		t.Fatalf("could not start rabbitmq container: %v", err)
	}

	connURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("could not get rabbitmq connection URL: %v", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("could not terminate container: %v", err)
		}
	})

	return connURL
}

// TestDB starts a postgres container and migrates it. The source parameter is
// relative to the caller, for example "file://../../migrations".
func TestDB(source string, t *testing.T) *sql.DB {
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		"docker.io/postgres:14.11-bookworm",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)))
	if err != nil {
		t.Fatalf("could not start postgres container: %v", err)
	}

	connURL, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	m, err := MigrateUp(source, connURL)
	if err != nil {
		t.Fatalf("could not run migrations: %v", err)
	}

	db, err := sql.Open("postgres", connURL)
	if err != nil {
		t.Fatalf("could not open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		m.Drop()
		c.Terminate(ctx)
	})

	return db
}

func startGenericContainer(t *testing.T, image, port string, strategy wait.Strategy) string {
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			WaitingFor:   strategy,
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("could not start %s container: %v", image, err)
	}

	// Endpoint resolves the first exposed port as host:port.
	addr, err := c.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("could not get %s endpoint: %v", image, err)
	}

	t.Cleanup(func() {
		c.Terminate(ctx)
	})

	return addr
}

// TestMongo returns a mongodb:// URI for a throwaway container.
func TestMongo(t *testing.T) string {
	addr := startGenericContainer(t, "mongo:7.0", "27017/tcp", wait.ForListeningPort("27017/tcp").WithStartupTimeout(60*time.Second))
	return "mongodb://" + addr
}

// TestRedis returns a host:port address for a throwaway container.
func TestRedis(t *testing.T) string {
	return startGenericContainer(t, "redis:7.2-alpine", "6379/tcp", wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second))
}

// TestClock returns a clock that moves forward by step on every call, so
// events read from it never share a stored timestamp.
func TestClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
